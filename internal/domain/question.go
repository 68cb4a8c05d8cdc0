package domain

import (
	"encoding/json"
	"fmt"
)

// QuestionType discriminates the three question variants carried by papers.
type QuestionType string

const (
	// QuestionStandard is a plain MCQ. Older payloads use an empty
	// question_type for this variant, so "" normalizes to it.
	QuestionStandard        QuestionType = "standard_mcq"
	QuestionGrouped         QuestionType = "grouped_mcq"
	QuestionAssertionReason QuestionType = "assertion_reason"
)

// Media is a single option or illustration: either text or an image.
// Text stays nil when the backend sent null, so renderers can show a
// distinct "no text provided" placeholder.
type Media struct {
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
	URL  string  `json:"url,omitempty"`
	Alt  string  `json:"alt,omitempty"`
}

// UnmarshalJSON accepts both the object form and a bare string, which some
// backends still send for plain-text options.
func (m *Media) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Type = "text"
		m.Text = s
		return nil
	}
	type alias Media
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Media(a)
	return nil
}

// TextMedia wraps a possibly-nil string as a text option.
func TextMedia(text *string) Media {
	return Media{Type: "text", Text: text}
}

// Standard is a plain MCQ with 2-5 answer options.
type Standard struct {
	Text    *string  `json:"question_text"`
	Images  []string `json:"question_images,omitempty"`
	Options []Media  `json:"options"`
}

// SubStatement is one labeled statement inside a grouped question.
type SubStatement struct {
	Label string  `json:"label"`
	Text  *string `json:"text"`
}

// AnswerTable carries the shared choices for a grouped question; each
// option string stands for a combination of sub-statement truth values.
type AnswerTable struct {
	Instruction *string  `json:"instruction"`
	Options     []string `json:"options"`
}

// Grouped is an instruction block over ordered sub-statements plus a
// shared answer table.
type Grouped struct {
	Text          *string        `json:"question_text"`
	Images        []string       `json:"question_images,omitempty"`
	Instructions  *string        `json:"group_instructions"`
	SubStatements []SubStatement `json:"sub_questions"`
	AnswerTable   AnswerTable    `json:"answer_table"`
}

// StatementPair holds the assertion and the reason; either may be null.
type StatementPair struct {
	Statement1    *string  `json:"statement_1"`
	Statement2    *string  `json:"statement_2"`
	AnswerChoices []string `json:"answer_choices"`
}

// AssertionReason pairs two statements with fixed relationship choices.
type AssertionReason struct {
	Images       []string      `json:"question_images,omitempty"`
	Instructions *string       `json:"group_instructions"`
	Table        StatementPair `json:"question_table"`
}

// Question is a closed sum over the three variants; exactly one of the
// variant pointers is non-nil, selected by Type.
type Question struct {
	Number int
	Type   QuestionType

	Standard        *Standard
	Grouped         *Grouped
	AssertionReason *AssertionReason
}

// OptionCount returns how many selectable choices the active variant has.
func (q Question) OptionCount() int {
	switch q.Type {
	case QuestionStandard:
		if q.Standard != nil {
			return len(q.Standard.Options)
		}
	case QuestionGrouped:
		if q.Grouped != nil {
			return len(q.Grouped.AnswerTable.Options)
		}
	case QuestionAssertionReason:
		if q.AssertionReason != nil {
			return len(q.AssertionReason.Table.AnswerChoices)
		}
	}
	return 0
}

type questionWire struct {
	QuestionNumber int          `json:"question_number"`
	QuestionType   QuestionType `json:"question_type"`

	// standard_mcq fields; option_a..option_e cover backends that send
	// positional fields instead of an options array.
	QuestionText   *string  `json:"question_text"`
	QuestionImages []string `json:"question_images,omitempty"`
	Options        []Media  `json:"options,omitempty"`
	OptionA        *Media   `json:"option_a,omitempty"`
	OptionB        *Media   `json:"option_b,omitempty"`
	OptionC        *Media   `json:"option_c,omitempty"`
	OptionD        *Media   `json:"option_d,omitempty"`
	OptionE        *Media   `json:"option_e,omitempty"`

	// grouped_mcq fields
	GroupInstructions *string        `json:"group_instructions,omitempty"`
	SubQuestions      []SubStatement `json:"sub_questions,omitempty"`
	AnswerTable       *AnswerTable   `json:"answer_table,omitempty"`

	// assertion_reason fields
	QuestionTable *StatementPair `json:"question_table,omitempty"`
}

// UnmarshalJSON dispatches on question_type and fills exactly one variant.
func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	q.Number = w.QuestionNumber
	q.Standard = nil
	q.Grouped = nil
	q.AssertionReason = nil

	switch w.QuestionType {
	case QuestionGrouped:
		q.Type = QuestionGrouped
		table := AnswerTable{}
		if w.AnswerTable != nil {
			table = *w.AnswerTable
		}
		q.Grouped = &Grouped{
			Text:          w.QuestionText,
			Images:        w.QuestionImages,
			Instructions:  w.GroupInstructions,
			SubStatements: w.SubQuestions,
			AnswerTable:   table,
		}
	case QuestionAssertionReason:
		q.Type = QuestionAssertionReason
		table := StatementPair{}
		if w.QuestionTable != nil {
			table = *w.QuestionTable
		}
		q.AssertionReason = &AssertionReason{
			Images:       w.QuestionImages,
			Instructions: w.GroupInstructions,
			Table:        table,
		}
	case QuestionStandard, "":
		q.Type = QuestionStandard
		options := w.Options
		if len(options) == 0 {
			for _, opt := range []*Media{w.OptionA, w.OptionB, w.OptionC, w.OptionD, w.OptionE} {
				if opt != nil {
					options = append(options, *opt)
				}
			}
		}
		q.Standard = &Standard{
			Text:    w.QuestionText,
			Images:  w.QuestionImages,
			Options: options,
		}
	default:
		return fmt.Errorf("question %d: unknown question_type %q", w.QuestionNumber, w.QuestionType)
	}
	return nil
}

// MarshalJSON emits the flattened wire form with the question_type discriminant.
func (q Question) MarshalJSON() ([]byte, error) {
	w := questionWire{
		QuestionNumber: q.Number,
		QuestionType:   q.Type,
	}
	switch q.Type {
	case QuestionStandard:
		if q.Standard != nil {
			w.QuestionText = q.Standard.Text
			w.QuestionImages = q.Standard.Images
			w.Options = q.Standard.Options
		}
	case QuestionGrouped:
		if q.Grouped != nil {
			w.QuestionText = q.Grouped.Text
			w.QuestionImages = q.Grouped.Images
			w.GroupInstructions = q.Grouped.Instructions
			w.SubQuestions = q.Grouped.SubStatements
			table := q.Grouped.AnswerTable
			w.AnswerTable = &table
		}
	case QuestionAssertionReason:
		if q.AssertionReason != nil {
			w.QuestionImages = q.AssertionReason.Images
			w.GroupInstructions = q.AssertionReason.Instructions
			table := q.AssertionReason.Table
			w.QuestionTable = &table
		}
	}
	return json.Marshal(w)
}
