package cmd

import "testing"

func TestRootCommandRegistersExpectedSubcommands(t *testing.T) {
	want := []string{"sling", "coordinator", "monitor", "watch", "nudge", "status", "log", "clean", "doctor"}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("rootCmd missing subcommand %q", name)
		}
	}
}

func TestCoordinatorHasStartStopStatus(t *testing.T) {
	want := []string{"start", "stop", "status"}
	got := map[string]bool{}
	for _, c := range coordinatorCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("coordinatorCmd missing subcommand %q", name)
		}
	}
}
