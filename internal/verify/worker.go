// Package verify drives a leased browser session through one provider
// portal: navigate, dismiss overlays, fill the form, submit, classify the
// response, extract the result, capture evidence.
package verify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/obikwelu/resulthawk/internal/browser"
	"github.com/obikwelu/resulthawk/internal/provider"
	"github.com/obikwelu/resulthawk/pkg/models"
)

// ErrNotConfigured marks a configuration problem (no portal URL, missing
// credential material). It fails the job immediately: retrying cannot fix
// missing configuration.
var ErrNotConfigured = errors.New("provider not configured")

// Worker executes verification attempts against one provider's portal.
// It is stateless; all per-attempt state lives on the session and payload.
type Worker struct {
	profile     *provider.Profile
	settings    *models.ProviderSettings
	stepTimeout time.Duration
}

// NewWorker builds a worker for the given profile, with operator selector
// overrides from settings already applied.
func NewWorker(profile *provider.Profile, settings *models.ProviderSettings, stepTimeout time.Duration) *Worker {
	return &Worker{
		profile:     profile.WithOverrides(settings.Selectors),
		settings:    settings,
		stepTimeout: stepTimeout,
	}
}

// Execute runs one verification attempt on the leased session and always
// yields a classified outcome for expected failure modes; the returned error
// is reserved for configuration problems (ErrNotConfigured) that should fail
// the job without retry. Every caught failure inside the flow becomes an
// outcome with classification error, never a silent success.
//
// There is no cooperative cancellation: the caller enforces its deadline by
// racing this call against a timer and discarding the session on timeout.
func (w *Worker) Execute(ctx context.Context, sess browser.Session, payload models.VerifyPayload) (outcome *models.Outcome, err error) {
	portalURL := payload.PortalURL
	if portalURL == "" {
		portalURL = w.settings.PortalURL
	}
	if portalURL == "" {
		return nil, fmt.Errorf("%w: no portal URL for %s", ErrNotConfigured, w.profile.Key)
	}
	if err := w.checkSecret(payload); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in verification worker", "provider", w.profile.Key, "error", r)
			outcome = w.errorOutcome(payload, fmt.Sprintf("internal failure: %v", r))
			err = nil
		}
	}()

	if err := w.navigate(ctx, sess, portalURL); err != nil {
		return w.errorOutcome(payload, err.Error()), nil
	}

	if err := w.fillForm(ctx, sess, payload); err != nil {
		return w.errorOutcome(payload, err.Error()), nil
	}

	if err := w.submit(ctx, sess, portalURL); err != nil {
		return w.errorOutcome(payload, err.Error()), nil
	}

	return w.classify(ctx, sess, payload, portalURL), nil
}

func (w *Worker) checkSecret(payload models.VerifyPayload) error {
	switch w.profile.Secret {
	case provider.SecretSerialPIN:
		if payload.CardSerial == "" || payload.CardPIN == "" {
			return fmt.Errorf("%w: %s requires a card serial and PIN", ErrNotConfigured, w.profile.Key)
		}
	case provider.SecretToken:
		if payload.Token == "" {
			return fmt.Errorf("%w: %s requires a result token", ErrNotConfigured, w.profile.Key)
		}
	}
	return nil
}

func (w *Worker) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.stepTimeout)
}

func (w *Worker) navigate(ctx context.Context, sess browser.Session, portalURL string) error {
	stepCtx, cancel := w.step(ctx)
	defer cancel()

	if err := sess.Navigate(stepCtx, portalURL); err != nil {
		return fmt.Errorf("open portal: %w", err)
	}

	dismissOverlays(stepCtx, sess)
	return nil
}

// fillForm fills the fields in fixed order: year, exam type, registration
// number, then the provider's secret material.
func (w *Worker) fillForm(ctx context.Context, sess browser.Session, payload models.VerifyPayload) error {
	stepCtx, cancel := w.step(ctx)
	defer cancel()

	sel := w.profile.Selectors

	examYear := payload.ExamYear
	examType := payload.ExamType
	if examType == "" {
		examType = w.profile.DefaultExamType
	}

	if err := fillField(stepCtx, sess, "exam year", sel.Year, kindSelect, examYear); err != nil {
		return err
	}
	if err := fillField(stepCtx, sess, "exam type", sel.ExamType, kindSelect, examType); err != nil {
		return err
	}
	if err := fillField(stepCtx, sess, "registration number", sel.RegNumber, kindText, payload.RegNumber); err != nil {
		return err
	}

	switch w.profile.Secret {
	case provider.SecretSerialPIN:
		if err := fillField(stepCtx, sess, "card serial", sel.Serial, kindText, payload.CardSerial); err != nil {
			return err
		}
		if err := fillField(stepCtx, sess, "card pin", sel.PIN, kindSecret, payload.CardPIN); err != nil {
			return err
		}
	case provider.SecretToken:
		if err := fillField(stepCtx, sess, "token", sel.Token, kindSecret, payload.Token); err != nil {
			return err
		}
	}

	return nil
}

// submit clicks through, then accounts for the three remote behaviors:
// in-page navigation, a confirmation sub-dialog that gates the real submit,
// and a result window opening as a new target.
func (w *Worker) submit(ctx context.Context, sess browser.Session, portalURL string) error {
	stepCtx, cancel := w.step(ctx)
	defer cancel()

	if err := clickFirst(stepCtx, sess, "submit", w.profile.Selectors.Submit); err != nil {
		return err
	}

	acceptConfirmation(stepCtx, sess)

	adopted, err := sess.AdoptNewTarget(stepCtx)
	if err != nil {
		slog.Warn("new-target probe failed", "provider", w.profile.Key, "error", err)
	}
	if adopted {
		slog.Info("adopted result window", "provider", w.profile.Key)
	}

	return nil
}

// classify inspects the post-submit page and produces the attempt's typed
// outcome, extracting the result rows and evidence on success.
func (w *Worker) classify(ctx context.Context, sess browser.Session, payload models.VerifyPayload, portalURL string) *models.Outcome {
	stepCtx, cancel := w.step(ctx)
	defer cancel()

	// A visible validation message means the form was never accepted.
	if msg := formError(stepCtx, sess); msg != "" {
		return w.errorOutcome(payload, msg)
	}

	text, err := sess.Text(stepCtx, "body")
	if err != nil {
		return w.errorOutcome(payload, fmt.Sprintf("read result page: %v", err))
	}

	classification, message := ClassifyText(text)
	if classification != models.OutcomeVerified {
		// An unrecognized page whose address is still the form's means the
		// submission never went through (blocked postback, dropped click).
		if message == unrecognizedResponse {
			if loc, lerr := sess.Location(stepCtx); lerr == nil && samePage(loc, portalURL) {
				message = fmt.Sprintf("submission did not leave the form page at %s", loc)
			}
		}
		out := w.errorOutcome(payload, message)
		out.Classification = classification
		return out
	}

	var rows [][]string
	if err := sess.Evaluate(stepCtx, extractRowsJS, &rows); err != nil {
		return w.errorOutcome(payload, fmt.Sprintf("extract result table: %v", err))
	}
	subjects := ParseSubjects(rows)
	if len(subjects) == 0 {
		return w.errorOutcome(payload, "result page recognized but no subject rows extracted")
	}

	outcome := &models.Outcome{
		Classification: models.OutcomeVerified,
		CandidateName:  ExtractCandidateName(text),
		Subjects:       subjects,
		RegNumber:      payload.RegNumber,
		ExamYear:       payload.ExamYear,
		ExamType:       payload.ExamType,
		Message:        fmt.Sprintf("%s result verified", w.profile.DisplayName),
	}

	// Evidence is the only durable proof of a transient third-party page;
	// capture it before the session goes back to the pool. A capture
	// failure downgrades the artifact, not the verification.
	outcome.Evidence = w.captureEvidence(ctx, sess)

	return outcome
}

func (w *Worker) captureEvidence(ctx context.Context, sess browser.Session) *models.Evidence {
	stepCtx, cancel := w.step(ctx)
	defer cancel()

	var ev models.Evidence
	if shot, err := sess.Screenshot(stepCtx); err != nil {
		slog.Warn("evidence screenshot failed", "provider", w.profile.Key, "error", err)
	} else if len(shot) > 0 {
		ev.Screenshot = base64.StdEncoding.EncodeToString(shot)
	}

	if doc, err := sess.PrintPDF(stepCtx); err != nil {
		slog.Warn("evidence document failed", "provider", w.profile.Key, "error", err)
	} else if len(doc) > 0 {
		ev.Document = base64.StdEncoding.EncodeToString(doc)
	}

	if ev.Screenshot == "" && ev.Document == "" {
		return nil
	}
	return &ev
}

func (w *Worker) errorOutcome(payload models.VerifyPayload, message string) *models.Outcome {
	return &models.Outcome{
		Classification: models.OutcomeError,
		RegNumber:      payload.RegNumber,
		ExamYear:       payload.ExamYear,
		ExamType:       payload.ExamType,
		Message:        message,
	}
}
