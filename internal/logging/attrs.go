package logging

import "log/slog"

func Step(name string) slog.Attr {
	return slog.String("step", name)
}

func Worker(id string) slog.Attr {
	return slog.String("worker_id", id)
}

func RunID(id string) slog.Attr {
	return slog.String("run_id", id)
}

func Line(n int) slog.Attr {
	return slog.Int("line", n)
}

func Fingerprint(sum uint64) slog.Attr {
	return slog.Uint64("scripts_xxh3", sum)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
