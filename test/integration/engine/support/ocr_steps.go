package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/marginalia/internal/ocr"
)

func (testCtx *TestContext) theRecognizerFailsWith(msg string) error {
	testCtx.Recognizer.FailWith(msg)
	return nil
}

func (testCtx *TestContext) iRunOCROnPage(page int) error {
	_, testCtx.LastError = testCtx.Session.RunOCR(context.Background(), page)
	return nil
}

func (testCtx *TestContext) theOCRRunFails() error {
	var jobErr *ocr.JobError
	if !errors.As(testCtx.LastError, &jobErr) {
		return fmt.Errorf("expected a failed OCR job, got %v", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theOCRRunSucceeds() error {
	return testCtx.LastError
}

func (testCtx *TestContext) theOCRRequestIsRejectedAsBusy() error {
	if !errors.Is(testCtx.LastError, ocr.ErrBusy) {
		return fmt.Errorf("expected ErrBusy, got %v", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theCacheHasNoEntryForPage(page int) error {
	if res, ok := testCtx.Session.OCRResults()[page]; ok {
		return fmt.Errorf("unexpected OCR cache entry for page %d: %+v", page, res)
	}
	return nil
}

func (testCtx *TestContext) theCacheHasTextForPage(text string, page int) error {
	res, ok := testCtx.Session.OCRResults()[page]
	if !ok {
		return fmt.Errorf("no OCR cache entry for page %d", page)
	}
	if res.Text != text {
		return fmt.Errorf("page %d text is %q, want %q", page, res.Text, text)
	}
	return nil
}

func (testCtx *TestContext) progressShowsForPage(page int, status string) error {
	pr, ok := testCtx.Session.OCRProgress()[ocr.PageKey(page)]
	if !ok {
		return fmt.Errorf("no progress entry for page %d", page)
	}
	if pr.Status != status {
		return fmt.Errorf("page %d status is %q, want %q", page, pr.Status, status)
	}
	return nil
}

func (testCtx *TestContext) noProgressEntryRemainsAfterExpiry(page int) error {
	deadline := time.Now().Add(20 * ExpiryDelay)
	for time.Now().Before(deadline) {
		if _, ok := testCtx.Session.OCRProgress()[ocr.PageKey(page)]; !ok {
			return nil
		}
		time.Sleep(ExpiryDelay / 4)
	}
	return fmt.Errorf("progress entry for page %d did not expire", page)
}

func (testCtx *TestContext) aRecognitionJobIsInFlightOnPage(page int) error {
	started := testCtx.Recognizer.Hold()
	done := make(chan error, 1)
	go func() {
		_, err := testCtx.Session.RunOCR(context.Background(), page)
		done <- err
	}()
	select {
	case <-started:
	case err := <-done:
		return fmt.Errorf("job finished before it was held: %v", err)
	case <-time.After(5 * time.Second):
		return errors.New("recognition job did not start")
	}
	testCtx.inflight = done
	return nil
}

func (testCtx *TestContext) theInFlightJobCompletes() error {
	testCtx.Recognizer.Release()
	if testCtx.inflight == nil {
		return errors.New("no job in flight")
	}
	err := <-testCtx.inflight
	testCtx.inflight = nil
	return err
}

// RegisterOCRSteps registers recognition pipeline steps.
func (testCtx *TestContext) RegisterOCRSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the recognizer fails with "([^"]*)"$`, testCtx.theRecognizerFailsWith)
	sc.Step(`^I run OCR on page (\d+)$`, testCtx.iRunOCROnPage)
	sc.Step(`^the OCR run fails$`, testCtx.theOCRRunFails)
	sc.Step(`^the OCR run succeeds$`, testCtx.theOCRRunSucceeds)
	sc.Step(`^the OCR request is rejected as busy$`, testCtx.theOCRRequestIsRejectedAsBusy)
	sc.Step(`^the OCR cache has no entry for page (\d+)$`, testCtx.theCacheHasNoEntryForPage)
	sc.Step(`^the OCR cache has text "([^"]*)" for page (\d+)$`, testCtx.theCacheHasTextForPage)
	sc.Step(`^progress for page (\d+) shows "([^"]*)"$`, testCtx.progressShowsForPage)
	sc.Step(`^no progress entry remains for page (\d+) after expiry$`, testCtx.noProgressEntryRemainsAfterExpiry)
	sc.Step(`^a recognition job is in flight on page (\d+)$`, testCtx.aRecognitionJobIsInFlightOnPage)
	sc.Step(`^the in-flight job completes$`, testCtx.theInFlightJobCompletes)
}
