package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/models"
	"municipal-complaint-service/shared/clients/llm"
	"municipal-complaint-service/shared/logx"
	"municipal-complaint-service/shared/metricsx"
)

// Completer is the slice of the model client the classifier needs.
type Completer interface {
	Complete(ctx context.Context, system string, messages []llm.Message) (string, error)
}

type DepartmentSource interface {
	List(ctx context.Context) ([]models.Department, error)
	GetByCode(ctx context.Context, code string) (models.Department, error)
}

type CorrectionSource interface {
	ListRecent(ctx context.Context, limit int) ([]models.AICorrection, error)
}

// Result is a routing decision. A complaint is always created even when the
// model fails; the fallback routes to the catch-all office at low confidence.
type Result struct {
	DepartmentID   uuid.UUID
	DepartmentCode string
	Confidence     float64
	Category       string
	Summary        string
	Fallback       bool
}

const (
	fallbackCode       = "secretary"
	fallbackConfidence = 0.3
	fallbackCategory   = "ทั่วไป"
	summaryMaxRunes    = 100
	correctionWindow   = 20
)

type Classifier struct {
	model       Completer
	departments DepartmentSource
	corrections CorrectionSource
	log         logx.Logger
}

func New(model Completer, departments DepartmentSource, corrections CorrectionSource, log logx.Logger) *Classifier {
	return &Classifier{model: model, departments: departments, corrections: corrections, log: log}
}

// Classify routes an issue to a department. It never returns an error for
// model-side failures: those degrade to the fallback result so intake can
// always finish.
func (c *Classifier) Classify(ctx context.Context, issue string) (Result, error) {
	depts, err := c.departments.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("classify: load departments: %w", err)
	}

	start := time.Now()
	res, ok := c.tryModel(ctx, issue, depts)
	metricsx.ObserveClassifyLatency(time.Since(start))
	if ok {
		metricsx.IncClassifySuccess()
		return res, nil
	}
	metricsx.IncClassifyFailure()

	fb, err := c.fallback(ctx, issue, depts)
	if err != nil {
		return Result{}, err
	}
	return fb, nil
}

func (c *Classifier) tryModel(ctx context.Context, issue string, depts []models.Department) (Result, bool) {
	prompt, err := c.buildPrompt(ctx, issue, depts)
	if err != nil {
		c.log.Warn(ctx, "classify_prompt_failed", "could not build classification prompt", logx.Err(err))
		return Result{}, false
	}

	raw, err := c.model.Complete(ctx, classifySystemPrompt, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		c.log.Warn(ctx, "classify_model_failed", "model call failed, using fallback routing", logx.Err(err))
		return Result{}, false
	}

	var out struct {
		Department string  `json:"department"`
		Confidence float64 `json:"confidence"`
		Category   string  `json:"category"`
		Summary    string  `json:"summary"`
	}
	body, ok := FirstJSONObject(raw)
	if !ok {
		c.log.Warn(ctx, "classify_reply_unparseable", "model reply had no json object", slog.String("reply", truncateRunes(raw, 200)))
		return Result{}, false
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		c.log.Warn(ctx, "classify_reply_invalid", "model reply did not decode", logx.Err(err))
		return Result{}, false
	}

	code := strings.ToLower(strings.TrimSpace(out.Department))
	var match *models.Department
	for i := range depts {
		if depts[i].Code == code {
			match = &depts[i]
			break
		}
	}
	if match == nil {
		c.log.Warn(ctx, "classify_unknown_department", "model picked a department outside the catalog", slog.String("department", code))
		return Result{}, false
	}

	conf := out.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		summary = truncateRunes(issue, summaryMaxRunes)
	}
	category := strings.TrimSpace(out.Category)
	if category == "" {
		category = fallbackCategory
	}
	return Result{
		DepartmentID:   match.DepartmentID,
		DepartmentCode: match.Code,
		Confidence:     conf,
		Category:       category,
		Summary:        truncateRunes(summary, summaryMaxRunes),
	}, true
}

func (c *Classifier) fallback(ctx context.Context, issue string, depts []models.Department) (Result, error) {
	for _, d := range depts {
		if d.Code == fallbackCode {
			return Result{
				DepartmentID:   d.DepartmentID,
				DepartmentCode: d.Code,
				Confidence:     fallbackConfidence,
				Category:       fallbackCategory,
				Summary:        truncateRunes(issue, summaryMaxRunes),
				Fallback:       true,
			}, nil
		}
	}
	d, err := c.departments.GetByCode(ctx, fallbackCode)
	if err != nil {
		return Result{}, fmt.Errorf("classify: fallback department %q missing: %w", fallbackCode, err)
	}
	return Result{
		DepartmentID:   d.DepartmentID,
		DepartmentCode: d.Code,
		Confidence:     fallbackConfidence,
		Category:       fallbackCategory,
		Summary:        truncateRunes(issue, summaryMaxRunes),
		Fallback:       true,
	}, nil
}

const classifySystemPrompt = `คุณคือระบบคัดแยกเรื่องร้องเรียนของเทศบาล หน้าที่ของคุณคืออ่านเรื่องร้องเรียนแล้วเลือกกองงานที่รับผิดชอบ ตอบเป็น JSON เท่านั้น ห้ามมีข้อความอื่น รูปแบบ: {"department":"<code>","confidence":<0-1>,"category":"<หมวดหมู่สั้นๆ>","summary":"<สรุปไม่เกิน 100 ตัวอักษร>"}`

func (c *Classifier) buildPrompt(ctx context.Context, issue string, depts []models.Department) (string, error) {
	var b strings.Builder
	b.WriteString("กองงานที่เลือกได้:\n")
	for _, d := range depts {
		b.WriteString("- ")
		b.WriteString(d.Code)
		b.WriteString(": ")
		b.WriteString(d.Name)
		if d.Description != "" {
			b.WriteString(" (")
			b.WriteString(d.Description)
			b.WriteString(")")
		}
		if len(d.Keywords) > 0 {
			b.WriteString(" คำที่เกี่ยวข้อง: ")
			b.WriteString(strings.Join(d.Keywords, ", "))
		}
		b.WriteString("\n")
	}

	if c.corrections != nil {
		corrections, err := c.corrections.ListRecent(ctx, correctionWindow)
		if err != nil {
			// Corrections only sharpen the prompt; classification proceeds
			// without them.
			c.log.Warn(ctx, "classify_corrections_unavailable", "proceeding without correction examples", logx.Err(err))
		} else if len(corrections) > 0 {
			codeByID := make(map[uuid.UUID]string, len(depts))
			for _, d := range depts {
				codeByID[d.DepartmentID] = d.Code
			}
			b.WriteString("\nตัวอย่างที่เจ้าหน้าที่เคยแก้ไขการคัดแยก:\n")
			for _, cor := range corrections {
				correct, ok := codeByID[cor.CorrectDepartmentID]
				if !ok {
					continue
				}
				b.WriteString("- \"")
				b.WriteString(truncateRunes(cor.IssueText, 120))
				b.WriteString("\" => ")
				b.WriteString(correct)
				if cor.WrongDepartmentID != nil {
					if wrong, ok := codeByID[*cor.WrongDepartmentID]; ok {
						b.WriteString(" (ไม่ใช่ ")
						b.WriteString(wrong)
						b.WriteString(")")
					}
				}
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\nเรื่องร้องเรียน: ")
	b.WriteString(issue)
	return b.String(), nil
}

// FirstJSONObject extracts the first balanced top-level JSON object from
// model output, tolerating prose or markdown fences around it.
func FirstJSONObject(s string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
