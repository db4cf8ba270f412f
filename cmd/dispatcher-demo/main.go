package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/logger"
	"github.com/mvasquez/taskpool/internal/reactor"
	"github.com/mvasquez/taskpool/internal/task"
)

func main() {
	logger.Init("info", os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting dispatcher demo")

	r := reactor.New()
	reg := task.NewRegistry()

	reg.Register("echo", echoHandler)
	reg.Register("sleep", sleepHandler)
	reg.Register("compute", computeHandler)
	reg.Register("fail", failHandler)

	d, err := dispatch.New(r, reg, dispatch.DefaultOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dispatcher")
	}

	ctx := context.Background()
	submit(ctx, d, "echo", "hello")
	submit(ctx, d, "sleep", 250)
	submit(ctx, d, "compute", 100000)
	submit(ctx, d, "fail")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-time.After(5 * time.Second):
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dispatcher shutdown error")
	}

	log.Info().Msg("dispatcher demo stopped")
}

func submit(ctx context.Context, d *dispatch.Dispatcher, name string, args ...any) {
	taskID, future, err := d.Call(name, args...)
	if err != nil {
		logger.Error().Err(err).Str("handler", name).Msg("submission rejected")
		return
	}

	go func() {
		value, err := future.Wait(ctx)
		log := logger.WithTask(taskID)
		if err != nil {
			log.Warn().Err(err).Str("handler", name).Msg("task rejected")
			return
		}
		log.Info().Str("handler", name).Interface("value", value).Msg("task fulfilled")
	}()
}

func echoHandler(ctx context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func sleepHandler(ctx context.Context, args []any) (any, error) {
	ms := 1000
	if len(args) > 0 {
		if v, ok := args[0].(int); ok {
			ms = v
		}
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return fmt.Sprintf("slept %dms", ms), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func computeHandler(ctx context.Context, args []any) (any, error) {
	iterations := 1000000
	if len(args) > 0 {
		if v, ok := args[0].(int); ok {
			iterations = v
		}
	}
	sum := 0
	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			sum += i
		}
	}
	return sum, nil
}

func failHandler(ctx context.Context, args []any) (any, error) {
	return nil, fmt.Errorf("intentional failure for testing")
}
