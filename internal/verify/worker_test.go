package verify_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/obikwelu/resulthawk/internal/provider"
	"github.com/obikwelu/resulthawk/internal/verify"
	"github.com/obikwelu/resulthawk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession scripts a portal page for worker tests.
type fakeSession struct {
	existing     map[string]bool
	texts        map[string]string
	rows         [][]string
	fallbackFill bool
	screenshot   []byte
	pdf          []byte

	navigated []string
	values    map[string]string
	clicks    []string
	adopt     bool
	location  string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		existing: map[string]bool{},
		texts:    map[string]string{},
		values:   map[string]string{},
	}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}
func (f *fakeSession) Reset(ctx context.Context) error { return nil }
func (f *fakeSession) Click(ctx context.Context, sel string) error {
	f.clicks = append(f.clicks, sel)
	return nil
}
func (f *fakeSession) SendKeys(ctx context.Context, sel, v string) error {
	f.values[sel] = v
	return nil
}
func (f *fakeSession) SetValue(ctx context.Context, sel, v string) error {
	f.values[sel] = v
	return nil
}
func (f *fakeSession) KeyPress(ctx context.Context, key string) error { return nil }
func (f *fakeSession) Exists(ctx context.Context, sel string) (bool, error) {
	return f.existing[sel], nil
}
func (f *fakeSession) Text(ctx context.Context, sel string) (string, error) {
	return f.texts[sel], nil
}
func (f *fakeSession) Location(ctx context.Context) (string, error) {
	if f.location != "" {
		return f.location, nil
	}
	if len(f.navigated) == 0 {
		return "about:blank", nil
	}
	return f.navigated[len(f.navigated)-1], nil
}
func (f *fakeSession) Evaluate(ctx context.Context, expr string, out any) error {
	switch v := out.(type) {
	case *[][]string:
		*v = f.rows
	case *bool:
		*v = f.fallbackFill
	}
	return nil
}
func (f *fakeSession) AdoptNewTarget(ctx context.Context) (bool, error) { return f.adopt, nil }
func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error)   { return f.screenshot, nil }
func (f *fakeSession) PrintPDF(ctx context.Context) ([]byte, error)     { return f.pdf, nil }
func (f *fakeSession) Close() error                                     { return nil }

func waecWorker(t *testing.T) *verify.Worker {
	t.Helper()
	profile, err := provider.Get("waec")
	require.NoError(t, err)
	return verify.NewWorker(profile, &models.ProviderSettings{
		Key:       "waec",
		PortalURL: "https://www.waecdirect.org",
		Price:     50000,
	}, 5*time.Second)
}

// waecFormSession scripts a page where the first selector candidate of every
// WAEC form field exists.
func waecFormSession() *fakeSession {
	sess := newFakeSession()
	for _, sel := range []string{
		"#ContentPlaceHolder1_ddlExamYear",
		"#ContentPlaceHolder1_ddlExamType",
		"#ContentPlaceHolder1_txtExamNumber",
		"#ContentPlaceHolder1_txtCardSerial",
		"#ContentPlaceHolder1_txtCardPin",
		"#ContentPlaceHolder1_btnSubmit",
	} {
		sess.existing[sel] = true
	}
	return sess
}

func waecPayload() models.VerifyPayload {
	return models.VerifyPayload{
		ExamYear:   "2023",
		ExamType:   "MAY/JUN",
		RegNumber:  "4250101001",
		CardSerial: "WRN123456789",
		CardPIN:    "123456789012",
	}
}

func TestExecute_VerifiedResult(t *testing.T) {
	sess := waecFormSession()
	sess.texts["body"] = "CANDIDATE INFORMATION\nCandidate Name: ADAEZE JOHNSON\nSubject  Grade\nENGLISH LANGUAGE B2\nMATHEMATICS A1"
	sess.rows = [][]string{
		{"SUBJECT", "GRADE"},
		{"ENGLISH LANGUAGE", "B2"},
		{"MATHEMATICS", "A1"},
	}
	sess.screenshot = []byte("png-bytes")

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeVerified, outcome.Classification)
	assert.Equal(t, "ADAEZE JOHNSON", outcome.CandidateName)
	assert.Equal(t, []models.SubjectGrade{
		{Subject: "ENGLISH LANGUAGE", Grade: "B2"},
		{Subject: "MATHEMATICS", Grade: "A1"},
	}, outcome.Subjects)
	assert.Equal(t, "4250101001", outcome.RegNumber)
	assert.Equal(t, "2023", outcome.ExamYear)

	require.NotNil(t, outcome.Evidence)
	assert.NotEmpty(t, outcome.Evidence.Screenshot)

	// All five fields plus submit went through the first selector candidate.
	assert.Equal(t, "2023", sess.values["#ContentPlaceHolder1_ddlExamYear"])
	assert.Equal(t, "WRN123456789", sess.values["#ContentPlaceHolder1_txtCardSerial"])
	assert.Contains(t, sess.clicks, "#ContentPlaceHolder1_btnSubmit")
}

func TestExecute_CardExhaustedIsError(t *testing.T) {
	sess := waecFormSession()
	sess.texts["body"] = "Sorry, your card usage has exceeded the allowed number of times."

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeError, outcome.Classification)
	assert.Contains(t, strings.ToLower(outcome.Message), "card usage has exceeded")
}

func TestExecute_NoResultIsNotFound(t *testing.T) {
	sess := waecFormSession()
	sess.texts["body"] = "No result found for the examination number supplied."

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeNotFound, outcome.Classification)
}

func TestExecute_FormValidationMessage(t *testing.T) {
	sess := waecFormSession()
	sess.existing[".error-message"] = true
	sess.texts[".error-message"] = "Please enter a valid examination number"
	sess.texts["body"] = "Please enter a valid examination number"

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeError, outcome.Classification)
	assert.Equal(t, "Please enter a valid examination number", outcome.Message)
}

func TestExecute_UnrecognizedPageIsError(t *testing.T) {
	sess := waecFormSession()
	sess.texts["body"] = "Service temporarily interrupted"
	sess.location = "https://www.waecdirect.org/DisplayResult.aspx"

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeError, outcome.Classification)
	assert.Equal(t, "unrecognized portal response", outcome.Message)
}

func TestExecute_StuckOnFormPageIsError(t *testing.T) {
	// The page address never changed after submit and nothing on the page
	// is recognizable: the submission did not go through.
	sess := waecFormSession()
	sess.texts["body"] = "Check your result here"
	sess.location = "https://www.waecdirect.org/"

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeError, outcome.Classification)
	assert.Contains(t, outcome.Message, "did not leave the form page")
}

func TestExecute_SameAddressWithClassifiedPageKeepsPortalMessage(t *testing.T) {
	// ASP.NET postbacks stay on the form URL; a classified page there must
	// keep the portal's own wording, not the stuck-on-form message.
	sess := waecFormSession()
	sess.texts["body"] = "No result found for the examination number supplied."
	sess.location = "https://www.waecdirect.org"

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeNotFound, outcome.Classification)
	assert.NotContains(t, outcome.Message, "form page")
}

func TestExecute_ResultPageWithoutRowsIsError(t *testing.T) {
	sess := waecFormSession()
	sess.texts["body"] = "Candidate Name: X\nSubject Grade listing unavailable"
	sess.rows = nil

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeError, outcome.Classification)
	assert.Contains(t, outcome.Message, "no subject rows")
}

func TestExecute_SelectorFallbackTolerated(t *testing.T) {
	// Nothing matches the named candidates except submit; the positional
	// fallback handles every field fill.
	sess := newFakeSession()
	sess.existing["#ContentPlaceHolder1_btnSubmit"] = true
	sess.fallbackFill = true
	sess.texts["body"] = "No result found for the examination number supplied."

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotFound, outcome.Classification)
	assert.Empty(t, sess.values)
}

func TestExecute_NoSelectorAndNoFallbackIsError(t *testing.T) {
	sess := newFakeSession()
	sess.fallbackFill = false

	outcome, err := waecWorker(t).Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeError, outcome.Classification)
	assert.Contains(t, outcome.Message, "exam year")
}

func TestExecute_PortalOverrideUsed(t *testing.T) {
	sess := waecFormSession()
	sess.texts["body"] = "No result found"

	payload := waecPayload()
	payload.PortalURL = "https://mirror.waecdirect.org"

	_, err := waecWorker(t).Execute(context.Background(), sess, payload)
	require.NoError(t, err)
	require.NotEmpty(t, sess.navigated)
	assert.Equal(t, "https://mirror.waecdirect.org", sess.navigated[0])
}

func TestExecute_MissingPortalURLIsConfigError(t *testing.T) {
	profile, err := provider.Get("waec")
	require.NoError(t, err)
	w := verify.NewWorker(profile, &models.ProviderSettings{Key: "waec"}, time.Second)

	_, err = w.Execute(context.Background(), newFakeSession(), waecPayload())
	assert.ErrorIs(t, err, verify.ErrNotConfigured)
}

func TestExecute_MissingSecretIsConfigError(t *testing.T) {
	profile, err := provider.Get("neco")
	require.NoError(t, err)
	w := verify.NewWorker(profile, &models.ProviderSettings{
		Key:       "neco",
		PortalURL: "https://results.neco.gov.ng",
	}, time.Second)

	payload := models.VerifyPayload{ExamYear: "2023", RegNumber: "1234567890"} // no token
	_, err = w.Execute(context.Background(), newFakeSession(), payload)
	assert.ErrorIs(t, err, verify.ErrNotConfigured)
}

func TestExecute_SelectorOverridesApplied(t *testing.T) {
	profile, err := provider.Get("waec")
	require.NoError(t, err)
	w := verify.NewWorker(profile, &models.ProviderSettings{
		Key:       "waec",
		PortalURL: "https://www.waecdirect.org",
		Selectors: map[string][]string{
			provider.FieldYear: {"#redesigned-year"},
		},
	}, time.Second)

	sess := waecFormSession()
	sess.existing["#redesigned-year"] = true
	delete(sess.existing, "#ContentPlaceHolder1_ddlExamYear")
	sess.texts["body"] = "No result found"

	_, err = w.Execute(context.Background(), sess, waecPayload())
	require.NoError(t, err)
	assert.Equal(t, "2023", sess.values["#redesigned-year"])
}
