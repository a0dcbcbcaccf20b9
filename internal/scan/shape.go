package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/gradewizard/internal/formatting"
	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/review"
)

type studentShape struct {
	StudentName string         `json:"student_name" validate:"required"`
	Answers     map[string]any `json:"answers" validate:"required,min=1"`
}

type rubricShape struct {
	ExamName  string          `json:"exam_name" validate:"required"`
	Questions []questionShape `json:"questions" validate:"required,min=1,unique=QuestionID,dive"`
}

type questionShape struct {
	QuestionID   string            `json:"question_id" validate:"required"`
	QuestionText *string           `json:"question_text" validate:"required"`
	Criteria     []json.RawMessage `json:"criteria" validate:"required,min=1"`
}

func newShapeValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeDocument checks the structural contract of an extraction response
// and decodes it. Violations wrap ErrShape.
func decodeDocument(v *validator.Validate, kind model.UploadType, body []byte) (review.Document, error) {
	raw := string(body)
	switch kind {
	case model.UploadStudent:
		shape, err := formatting.Parse[studentShape](raw)
		if err != nil {
			return review.Document{}, fmt.Errorf("%w: %v", ErrShape, err)
		}
		if err := v.Struct(shape); err != nil {
			return review.Document{}, shapeError(err)
		}
		doc, err := formatting.Parse[model.StudentExtraction](raw)
		if err != nil {
			return review.Document{}, fmt.Errorf("%w: answers: %v", ErrShape, err)
		}
		return review.Document{Kind: kind, Student: &doc}, nil
	case model.UploadRubric:
		shape, err := formatting.Parse[rubricShape](raw)
		if err != nil {
			return review.Document{}, fmt.Errorf("%w: %v", ErrShape, err)
		}
		if err := v.Struct(shape); err != nil {
			return review.Document{}, shapeError(err)
		}
		doc, err := formatting.Parse[model.RubricExtraction](raw)
		if err != nil {
			return review.Document{}, fmt.Errorf("%w: questions: %v", ErrShape, err)
		}
		return review.Document{Kind: kind, Rubric: &doc}, nil
	}
	return review.Document{}, model.Preconditionf("unknown upload type %q", kind)
}

func shapeError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrShape, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, "missing "+field)
		case "min":
			parts = append(parts, "empty "+field)
		case "unique":
			parts = append(parts, "duplicate ids in "+field)
		default:
			parts = append(parts, fmt.Sprintf("%s fails %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrShape, strings.Join(parts, ", "))
}
