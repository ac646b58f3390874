// Package hooks запускает внешние hook-процессы (version/download/
// ready/install/restart) и переводит их stdout и код завершения в
// события inbox-а.
package hooks

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/telemetry"
)

// RetryExitCode — код завершения, которым hook сигнализирует
// "повтори меня позже", а не провал.
const RetryExitCode = 3

// Config описывает один запуск hook-а.
type Config struct {
	Command      string
	Args         []string
	RetryInterval time.Duration
	MaxRetries   int
}

// Handle — cancel-ручка запущенного hook-а. Job-cancellation watcher
// вызывает Stop, когда cloud отзывает job, чей hook сейчас выполняется.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop просит hook остановиться как можно скорее. Не ждёт завершения;
// после остановки финальное событие (completed/failed/timed_out) в
// inbox не публикуется.
func (h *Handle) Stop() {
	h.cancel()
}

// Wait блокируется до завершения горутины hook-а. Используется только
// в тестах и при join-семантике.
func (h *Handle) Wait() {
	<-h.done
}

// Run запускает hook в фоновой горутине и возвращает Handle немедленно.
// Каждая строка stdout публикуется как HookStatusOutput; финальный
// результат — одно из HookStatusCompleted/Failed/TimedOut.
//
// firstCall передаётся hook-у первым аргументом и не меняется между
// повторными попытками одного и того же запуска — hook должен видеть
// момент первого вызова даже после нескольких retry.
func Run(parent context.Context, box *inbox.Inbox, cfg Config, firstCall time.Time) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		runWithRetry(ctx, box, cfg, firstCall)
	}()

	return h
}

func runWithRetry(ctx context.Context, box *inbox.Inbox, cfg Config, firstCall time.Time) {
	retry := 0
	for {
		exitCode, lastLine, err := runOnce(ctx, box, cfg, firstCall, retry)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.HookInvocations.WithLabelValues(cfg.Command, string(inbox.HookStatusFailed)).Inc()
			box.Put(inbox.WithHook(cfg.Command, inbox.HookStatusFailed, err.Error()))
			return
		}

		switch {
		case exitCode == 0:
			telemetry.HookInvocations.WithLabelValues(cfg.Command, string(inbox.HookStatusCompleted)).Inc()
			box.Put(inbox.WithHook(cfg.Command, inbox.HookStatusCompleted, lastLine))
			return
		case exitCode == RetryExitCode:
			retry++
			if retry >= cfg.MaxRetries {
				timeout := time.Duration(cfg.MaxRetries) * cfg.RetryInterval
				telemetry.HookInvocations.WithLabelValues(cfg.Command, string(inbox.HookStatusTimedOut)).Inc()
				box.Put(inbox.WithHook(cfg.Command, inbox.HookStatusTimedOut,
					fmt.Sprintf("Timeout after %s", timeout)))
				return
			}
			if !cancellableWait(ctx, cfg.RetryInterval) {
				return
			}
		default:
			telemetry.HookInvocations.WithLabelValues(cfg.Command, string(inbox.HookStatusFailed)).Inc()
			box.Put(inbox.WithHook(cfg.Command, inbox.HookStatusFailed,
				fmt.Sprintf("Exit code: %d", exitCode)))
			return
		}
	}
}

// cancellableWait спит interval или до отмены ctx. Возвращает false,
// если ожидание было прервано отменой — согласно протоколу, это не
// плановый sleep, а timed-wait на cancel-флаг.
func cancellableWait(ctx context.Context, interval time.Duration) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// runOnce выполняет один запуск процесса hook-а, стримит построчный
// stdout как HookStatusOutput и возвращает код завершения и последнюю
// непустую строку вывода.
func runOnce(ctx context.Context, box *inbox.Inbox, cfg Config, firstCall time.Time, retry int) (int, string, error) {
	args := append([]string{
		strconv.FormatInt(firstCall.Unix(), 10),
		strconv.Itoa(retry),
	}, cfg.Args...)

	cmd := exec.CommandContext(ctx, cfg.Command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, "", fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return 0, "", fmt.Errorf("start hook: %w", err)
	}

	var lastLine string
	var mu sync.Mutex
	scanner := bufio.NewScanner(stdout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			mu.Lock()
			lastLine = line
			mu.Unlock()
			box.Put(inbox.WithHook(cfg.Command, inbox.HookStatusOutput, line))
		}
	}()

	<-done
	err = cmd.Wait()

	mu.Lock()
	defer mu.Unlock()

	if err == nil {
		return 0, lastLine, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode(), lastLine, nil
	}
	return 0, "", fmt.Errorf("hook %s: %w", cfg.Command, err)
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}
