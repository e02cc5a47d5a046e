package dataflow

import (
	"os"
	"testing"
)

func TestConfigFromEnvSchedulerAliases(t *testing.T) {
	cases := map[string]SchedulerKind{
		"":               SchedulerWorkStealing,
		"work_stealing":  SchedulerWorkStealing,
		"task_pool":      SchedulerWorkStealing,
		"fifo_steal":     SchedulerWorkStealing,
		"fifo_affinity":  SchedulerWorkStealing,
		"shared_queue":   SchedulerSharedQueue,
		"fifo_single":    SchedulerSharedQueue,
		"FIFO_SINGLE":    SchedulerSharedQueue,
		"something_else": SchedulerWorkStealing,
	}
	for in, want := range cases {
		os.Setenv("SCHEDULER", in)
		if got := ConfigFromEnv().Kind; got != want {
			t.Errorf("ConfigFromEnv() with SCHEDULER=%q = %v, want %v", in, got, want)
		}
	}
	os.Unsetenv("SCHEDULER")
}
