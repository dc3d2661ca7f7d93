package question

import (
	"bytes"
	"context"
	"html/template"

	"prairielearn/backend/internal/models"
)

// RenderedVariant is everything the preview page shows for one variant.
type RenderedVariant struct {
	Question     *models.Question
	Variant      *models.Variant
	Submissions  []models.Submission
	QuestionHTML string
}

// SubmissionPanels is the HTML for one submission, as fetched by the
// preview page after a submission is graded.
type SubmissionPanels struct {
	SubmissionPanel  string `json:"submissionPanel"`
	ExtraHeadersHTML string `json:"extraHeadersHtml"`
}

// Renderer turns stored variants and submissions into HTML.
type Renderer interface {
	RenderVariant(ctx context.Context, q *models.Question, v *models.Variant, subs []models.Submission) (*RenderedVariant, error)
	RenderSubmission(ctx context.Context, q *models.Question, v *models.Variant, sub *models.Submission) (*SubmissionPanels, error)
}

// Grader scores a submission in place. It may leave Score nil when grading
// happens elsewhere.
type Grader interface {
	Grade(ctx context.Context, q *models.Question, v *models.Variant, sub *models.Submission) error
}

// ManualGrader leaves submissions ungraded for later manual or external grading.
type ManualGrader struct{}

func (ManualGrader) Grade(context.Context, *models.Question, *models.Variant, *models.Submission) error {
	return nil
}

var (
	questionTmpl = template.Must(template.New("question").Parse(
		`<div class="question-container" data-qid="{{.QID}}" data-variant-id="{{.VariantID}}">` +
			`<h2>{{.Title}}</h2>` +
			`{{range .Tags}}<span class="badge color-{{.Color}}">{{.Name}}</span>{{end}}` +
			`<p class="variant-seed">Variant seed: {{.Seed}}</p>` +
			`</div>`))

	submissionTmpl = template.Must(template.New("submission").Parse(
		`<div class="submission" data-submission-id="{{.ID}}">` +
			`<pre>{{.Answer}}</pre>` +
			`{{if .Score}}<p class="score">Score: {{.Score}}</p>{{else}}<p class="score">Not graded</p>{{end}}` +
			`</div>`))
)

// PlainRenderer renders minimal HTML panels from stored data only.
type PlainRenderer struct{}

func (PlainRenderer) RenderVariant(_ context.Context, q *models.Question, v *models.Variant, subs []models.Submission) (*RenderedVariant, error) {
	type tag struct{ Name, Color string }
	data := struct {
		QID, Title, Seed string
		VariantID        uint
		Tags             []tag
	}{QID: q.QID, Title: q.Title, Seed: v.Seed, VariantID: v.ID}
	for _, qt := range q.Tags {
		data.Tags = append(data.Tags, tag{Name: qt.Tag.Name, Color: qt.Tag.Color})
	}

	var buf bytes.Buffer
	if err := questionTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return &RenderedVariant{Question: q, Variant: v, Submissions: subs, QuestionHTML: buf.String()}, nil
}

func (PlainRenderer) RenderSubmission(_ context.Context, _ *models.Question, _ *models.Variant, sub *models.Submission) (*SubmissionPanels, error) {
	data := struct {
		ID     uint
		Answer string
		Score  *float64
	}{ID: sub.ID, Answer: string(sub.SubmittedAnswer), Score: sub.Score}

	var buf bytes.Buffer
	if err := submissionTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return &SubmissionPanels{SubmissionPanel: buf.String()}, nil
}
