package task

import "testing"

func TestTaskSettled(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want bool
	}{
		{"pending", Task{Status: StatusPending, MaxRetries: 3}, false},
		{"running", Task{Status: StatusRunning, Attempts: 3, MaxRetries: 3}, false},
		{"succeeded", Task{Status: StatusSucceeded, Attempts: 1, MaxRetries: 3}, true},
		{"retryable failure", Task{Status: StatusFailed, Attempts: 1, MaxRetries: 3}, false},
		{"exhausted", Task{Status: StatusFailed, Attempts: 3, MaxRetries: 3}, true},
		{"terminal", Task{Status: StatusFailed, Attempts: 1, MaxRetries: 3, Terminal: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.task.Settled(); got != tc.want {
				t.Fatalf("Settled() = %v, want %v", got, tc.want)
			}
		})
	}
}
