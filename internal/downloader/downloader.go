// Package downloader реализует резюмируемую HTTP-загрузку артефакта
// job-а с возобновлением по Range-заголовку и экспоненциальным
// backoff с полным jitter-ом на сетевые ошибки.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/shaiso/upparat/internal/inbox"
	"github.com/shaiso/upparat/internal/jobs"
	"github.com/shaiso/upparat/internal/telemetry"
)

// readChunkBytes — размер одного чтения из тела ответа; каждый чанк
// сбрасывается на диск и синхронизируется, чтобы прогресс пережил
// внезапную перезагрузку.
const readChunkBytes = 100 * 1024

const requestTimeout = 30 * time.Second

const (
	backoffBase = 1 * time.Second
	backoffCap  = 64 * time.Second
)

// interruptedError сигнализирует, что URL истёк (HTTP 403) и загрузку
// нужно начать заново с новым describe-job-execution запросом, а не
// повторять текущую попытку.
type interruptedError struct{ status int }

func (e *interruptedError) Error() string {
	return fmt.Sprintf("download interrupted: HTTP %d", e.status)
}

// Handle — cancel-ручка запущенной загрузки.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *Handle) Stop() { h.cancel() }
func (h *Handle) Wait() { <-h.done }

// OnProgress репортит суммарное число записанных байт после каждого
// успешного чанка — вызывающая сторона (download state) публикует его
// как IN_PROGRESS/download_progress статус.
type OnProgress func(totalBytes int64)

// Run запускает загрузку артефакта job-а в фоновой горутине.
// Публикует в box ровно одно из DownloadCompleted/DownloadInterrupted
// по завершении; при отмене (Stop или отмена parent) не публикует
// ничего и удаляет частичный файл.
func Run(parent context.Context, box *inbox.Inbox, job jobs.Job, filepath string, onProgress OnProgress) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		runWithRetry(ctx, box, job, filepath, onProgress)
	}()

	return h
}

func runWithRetry(ctx context.Context, box *inbox.Inbox, job jobs.Job, filepath string, onProgress OnProgress) {
	operation := func() (struct{}, error) {
		err := attempt(ctx, job.FileURL, filepath, onProgress)
		var interrupted *interruptedError
		if asInterrupted(err, &interrupted) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newFullJitterBackOff(backoffBase, backoffCap)),
		backoff.WithMaxTries(0),
	)

	if ctx.Err() != nil {
		if errRemoveAbandoned := os.Remove(filepath); errRemoveAbandoned != nil && !os.IsNotExist(errRemoveAbandoned) {
			_ = errRemoveAbandoned
		}
		return
	}

	var interrupted *interruptedError
	if asInterrupted(err, &interrupted) {
		box.Put(inbox.New(inbox.DownloadInterrupted))
		return
	}

	if err != nil {
		box.Put(inbox.New(inbox.DownloadInterrupted))
		return
	}

	done := job
	done.FileURL = filepath
	box.Put(inbox.WithJob(inbox.DownloadCompleted, done))
}

func asInterrupted(err error, target **interruptedError) bool {
	ie, ok := err.(*interruptedError)
	if !ok {
		return false
	}
	*target = ie
	return true
}

// attempt выполняет один HTTP-запрос с учётом уже скачанной части
// файла. Возвращает nil при полном успехе, *interruptedError на 403,
// и обычную error на временные сбои, которую backoff.Retry повторит.
func attempt(ctx context.Context, url, filepath string, onProgress OnProgress) error {
	startPosition, err := existingSize(filepath)
	if err != nil {
		return backoff.Permanent(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startPosition))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return writeBody(ctx, resp.Body, filepath, startPosition, onProgress)
	case http.StatusRequestedRangeNotSatisfiable:
		// Диапазон уже полностью скачан раньше — считаем завершённым.
		return nil
	case http.StatusForbidden:
		return &interruptedError{status: resp.StatusCode}
	default:
		return fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
}

func existingSize(filepath string) (int64, error) {
	info, err := os.Stat(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

func writeBody(ctx context.Context, body io.Reader, filepath string, startPosition int64, onProgress OnProgress) error {
	f, err := os.OpenFile(filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer f.Close()

	total := startPosition
	buf := make([]byte, readChunkBytes)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			if syncErr := f.Sync(); syncErr != nil {
				return syncErr
			}
			telemetry.DownloadBytes.Add(float64(n))
			total += int64(n)
			if onProgress != nil {
				onProgress(total)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
