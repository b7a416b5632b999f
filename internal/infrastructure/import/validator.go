package csvimport

import (
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDateFormat is the date layout feed files carry unless a rule says
// otherwise
const DefaultDateFormat = "2006-01-02"

// FieldType names the expected shape of a column value
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInt     FieldType = "int"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
	TypeEmail   FieldType = "email"
)

// FieldRule describes the checks one column must pass
type FieldRule struct {
	Column     string
	Type       FieldType
	Required   bool
	MinLength  int
	MaxLength  int
	MinValue   *decimal.Decimal
	MaxValue   *decimal.Decimal
	DateFormat string
	Custom     func(value string) error
}

// FieldRuleBuilder helps build field rules fluently
type FieldRuleBuilder struct {
	rule FieldRule
}

// Field creates a new field rule builder
func Field(column string) *FieldRuleBuilder {
	return &FieldRuleBuilder{
		rule: FieldRule{
			Column:     column,
			Type:       TypeString,
			DateFormat: DefaultDateFormat,
		},
	}
}

// Required marks the field as required
func (b *FieldRuleBuilder) Required() *FieldRuleBuilder {
	b.rule.Required = true
	return b
}

// Int sets the field type to integer
func (b *FieldRuleBuilder) Int() *FieldRuleBuilder {
	b.rule.Type = TypeInt
	return b
}

// Decimal sets the field type to decimal
func (b *FieldRuleBuilder) Decimal() *FieldRuleBuilder {
	b.rule.Type = TypeDecimal
	return b
}

// Date sets the field type to date
func (b *FieldRuleBuilder) Date() *FieldRuleBuilder {
	b.rule.Type = TypeDate
	return b
}

// DateFormat sets the expected date layout
func (b *FieldRuleBuilder) DateFormat(format string) *FieldRuleBuilder {
	b.rule.DateFormat = format
	return b
}

// Email sets the field type to email
func (b *FieldRuleBuilder) Email() *FieldRuleBuilder {
	b.rule.Type = TypeEmail
	return b
}

// MinLength sets the minimum length
func (b *FieldRuleBuilder) MinLength(n int) *FieldRuleBuilder {
	b.rule.MinLength = n
	return b
}

// MaxLength sets the maximum length
func (b *FieldRuleBuilder) MaxLength(n int) *FieldRuleBuilder {
	b.rule.MaxLength = n
	return b
}

// MinValue sets the minimum numeric value
func (b *FieldRuleBuilder) MinValue(v decimal.Decimal) *FieldRuleBuilder {
	b.rule.MinValue = &v
	return b
}

// MaxValue sets the maximum numeric value
func (b *FieldRuleBuilder) MaxValue(v decimal.Decimal) *FieldRuleBuilder {
	b.rule.MaxValue = &v
	return b
}

// Custom sets a custom validation function
func (b *FieldRuleBuilder) Custom(fn func(value string) error) *FieldRuleBuilder {
	b.rule.Custom = fn
	return b
}

// Build returns the built field rule
func (b *FieldRuleBuilder) Build() FieldRule {
	return b.rule
}

// FieldValidator checks rows against an ordered list of field rules. It
// holds no per-file state, so one validator serves a whole batch.
type FieldValidator struct {
	rules []FieldRule
}

// NewFieldValidator creates a new field validator
func NewFieldValidator(rules []FieldRule) *FieldValidator {
	return &FieldValidator{rules: rules}
}

// RequiredColumns returns the columns a file must carry
func (v *FieldValidator) RequiredColumns() []string {
	var cols []string
	for _, rule := range v.rules {
		if rule.Required {
			cols = append(cols, rule.Column)
		}
	}
	return cols
}

// Validate checks one row and returns every problem found in it, in rule
// order. Empty optional fields pass without further checks.
func (v *FieldValidator) Validate(row *Row) []RowError {
	var errs []RowError
	for _, rule := range v.rules {
		value := row.Get(rule.Column)

		if value == "" {
			if rule.Required {
				errs = append(errs, NewRowError(row.Line, rule.Column, ErrCodeRequiredField,
					fmt.Sprintf("%s is required", rule.Column)))
			}
			continue
		}

		if err := checkType(value, rule); err != nil {
			errs = append(errs, NewRowErrorWithValue(row.Line, rule.Column, ErrCodeInvalidType,
				err.Error(), value))
			continue
		}

		if (rule.MinLength > 0 && len(value) < rule.MinLength) ||
			(rule.MaxLength > 0 && len(value) > rule.MaxLength) {
			errs = append(errs, NewRowError(row.Line, rule.Column, ErrCodeInvalidLength,
				lengthMessage(rule)))
		}

		if err := checkRange(value, rule); err != nil {
			errs = append(errs, NewRowErrorWithValue(row.Line, rule.Column, ErrCodeInvalidRange,
				err.Error(), value))
		}

		if rule.Custom != nil {
			if err := rule.Custom(value); err != nil {
				errs = append(errs, NewRowError(row.Line, rule.Column, ErrCodeValidation, err.Error()))
			}
		}
	}
	return errs
}

// checkType validates a value against the rule's expected type
func checkType(value string, rule FieldRule) error {
	switch rule.Type {
	case TypeInt:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("expected an integer")
		}
	case TypeDecimal:
		if _, err := decimal.NewFromString(value); err != nil {
			return fmt.Errorf("expected a decimal number")
		}
	case TypeDate:
		format := rule.DateFormat
		if format == "" {
			format = DefaultDateFormat
		}
		if _, err := time.Parse(format, value); err != nil {
			return fmt.Errorf("expected a date in format %s", format)
		}
	case TypeEmail:
		if _, err := mail.ParseAddress(value); err != nil {
			return fmt.Errorf("expected an email address")
		}
	}
	return nil
}

// checkRange validates a numeric value against the rule's bounds. Type
// errors are reported before this runs, so parsing cannot fail here.
func checkRange(value string, rule FieldRule) error {
	if rule.MinValue == nil && rule.MaxValue == nil {
		return nil
	}
	if rule.Type != TypeInt && rule.Type != TypeDecimal {
		return nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil
	}
	if rule.MinValue != nil && d.LessThan(*rule.MinValue) {
		return fmt.Errorf("value must be at least %s", rule.MinValue.String())
	}
	if rule.MaxValue != nil && d.GreaterThan(*rule.MaxValue) {
		return fmt.Errorf("value must be at most %s", rule.MaxValue.String())
	}
	return nil
}

// lengthMessage describes the violated length bound
func lengthMessage(rule FieldRule) string {
	switch {
	case rule.MinLength > 0 && rule.MaxLength > 0:
		return fmt.Sprintf("length must be between %d and %d", rule.MinLength, rule.MaxLength)
	case rule.MinLength > 0:
		return fmt.Sprintf("length must be at least %d", rule.MinLength)
	default:
		return fmt.Sprintf("length must be at most %d", rule.MaxLength)
	}
}
