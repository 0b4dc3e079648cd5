package app

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want Command
	}{
		{"空引数はworker", []string{}, CommandWorker},
		{"worker", []string{"worker"}, CommandWorker},
		{"once", []string{"once"}, CommandOnce},
		{"serve", []string{"serve"}, CommandServe},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"未知のコマンドはworker", []string{"unknown"}, CommandWorker},
		{"後続の引数は無視される", []string{"once", "extra"}, CommandOnce},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseCommand(tc.args); got != tc.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tc.args, got, tc.want)
			}
		})
	}
}
