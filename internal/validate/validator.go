package validate

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/archetype/internal/ir"
)

// stepTolerance absorbs float error in the step check.
const stepTolerance = 1e-5

// DefaultPatternCacheSize bounds the compiled pattern cache.
const DefaultPatternCacheSize = 256

// RefResolver looks up the targets of ENTRIES and UPLOADS fields.
// A missing target is reported with found=false, not an error.
type RefResolver interface {
	EntryScheme(ctx context.Context, entryID int64) (schemeID int64, found bool, err error)
	Upload(ctx context.Context, uploadID int64) (info ir.UploadInfo, found bool, err error)
}

// Validator checks documents against scheme fields. It is safe for
// concurrent use.
type Validator struct {
	refs     RefResolver
	patterns *lru.Cache[string, *regexp.Regexp]
}

// New creates a Validator. refs may be nil when no field references
// entries or uploads with rules; such references then fail validation.
func New(refs RefResolver, patternCacheSize int) *Validator {
	if patternCacheSize <= 0 {
		patternCacheSize = DefaultPatternCacheSize
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *regexp.Regexp](patternCacheSize)
	return &Validator{refs: refs, patterns: cache}
}

// ValidateEntry checks data against fields with a one-off Validator.
func ValidateEntry(ctx context.Context, data *ir.IRObject, fields []ir.FieldDef, refs RefResolver) error {
	return New(refs, 0).ValidateEntry(ctx, data, fields)
}

// ValidateEntry checks data against fields and returns the first violation
// as a *ValidationError. Checks run in a fixed order: unknown keys in input
// order, then each field in scheme order. Errors from the RefResolver are
// returned wrapped, not as a ValidationError.
func (v *Validator) ValidateEntry(ctx context.Context, data *ir.IRObject, fields []ir.FieldDef) error {
	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f.Key] = true
	}
	for _, key := range data.Keys() {
		if !allowed[key] {
			return fieldErr(key, CodeUnknownKey, "field %q is not defined in the scheme", key)
		}
	}

	for _, f := range fields {
		value, exists := data.Get(f.Key)

		if f.Required && isBlank(value, exists) {
			return fieldErr(f.Key, CodeRequired, "field %q is required", f.Key)
		}
		if !exists {
			continue
		}

		if !f.IsArray {
			if err := v.checkValue(ctx, f, value); err != nil {
				return err
			}
			continue
		}

		items, ok := value.(ir.IRArray)
		if !ok {
			return fieldErr(f.Key, CodeInvalidType, "field %q must be an array, got %s", f.Key, ir.KindOf(value))
		}
		if n := f.Array.MinLength; n != nil && len(items) < *n {
			return fieldErr(f.Key, CodeTooShort, "field %q requires at least %d items", f.Key, *n)
		}
		if n := f.Array.MaxLength; n != nil && len(items) > *n {
			return fieldErr(f.Key, CodeTooLong, "field %q allows at most %d items", f.Key, *n)
		}
		for _, item := range items {
			if err := v.checkValue(ctx, f, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// isBlank implements the required rule: absent, null or the empty string.
func isBlank(value ir.IRValue, exists bool) bool {
	if !exists {
		return true
	}
	switch val := value.(type) {
	case nil, ir.IRNull:
		return true
	case ir.IRString:
		return val == ""
	default:
		return false
	}
}

// checkValue validates one scalar (or one array element) by type, then enum.
func (v *Validator) checkValue(ctx context.Context, f ir.FieldDef, value ir.IRValue) error {
	var err error
	switch f.Type {
	case ir.TypeString:
		err = v.checkString(f, value)
	case ir.TypeNumber:
		err = checkNumber(f, value)
	case ir.TypeBoolean:
		if _, ok := value.(ir.IRBool); !ok {
			err = fieldErr(f.Key, CodeInvalidType, "%q must be a boolean, got %s", f.Key, ir.KindOf(value))
		}
	case ir.TypeEntries:
		err = v.checkEntryRef(ctx, f, value)
	case ir.TypeUploads:
		err = v.checkUploadRef(ctx, f, value)
	default:
		err = fieldErr(f.Key, CodeInvalidType, "%q has unsupported type %s", f.Key, f.Type)
	}
	if err != nil {
		return err
	}

	if len(f.Enum) > 0 && !slices.ContainsFunc(f.Enum, func(e ir.IRValue) bool { return ir.Equal(e, value) }) {
		return fieldErr(f.Key, CodeInvalidEnum, "%q value is not in the allowed list", f.Key)
	}
	return nil
}

func (v *Validator) checkString(f ir.FieldDef, value ir.IRValue) error {
	s, ok := value.(ir.IRString)
	if !ok {
		return fieldErr(f.Key, CodeInvalidType, "%q must be a string, got %s", f.Key, ir.KindOf(value))
	}
	rules, _ := f.Rules.(ir.StringRules)

	n := utf8.RuneCountInString(string(s))
	if rules.MinChar != nil && n < *rules.MinChar {
		return fieldErr(f.Key, CodeTooShort, "%q must be at least %d characters", f.Key, *rules.MinChar)
	}
	if rules.MaxChar != nil && n > *rules.MaxChar {
		return fieldErr(f.Key, CodeTooLong, "%q must be at most %d characters", f.Key, *rules.MaxChar)
	}
	if rules.Pattern != "" {
		re, err := v.pattern(rules.Pattern)
		if err != nil {
			return fieldErr(f.Key, CodePattern, "%q has an invalid pattern: %v", f.Key, err)
		}
		if !re.MatchString(string(s)) {
			return fieldErr(f.Key, CodePattern, "%q does not match the required pattern", f.Key)
		}
	}
	if rules.Format != "" {
		if err := checkStringFormat(rules.Format, string(s)); err != nil {
			return fieldErr(f.Key, CodeInvalidFormat, "%q is not valid %s: %v", f.Key, rules.Format, err)
		}
	}
	return nil
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	if re, ok := v.patterns.Get(expr); ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns.Add(expr, re)
	return re, nil
}

func checkNumber(f ir.FieldDef, value ir.IRValue) error {
	num, ok := ir.AsFloat(value)
	if !ok {
		return fieldErr(f.Key, CodeInvalidType, "%q must be a number, got %s", f.Key, ir.KindOf(value))
	}
	rules, _ := f.Rules.(ir.NumberRules)

	switch rules.Format {
	case ir.FormatInt, ir.FormatDatetime:
		if _, isInt := value.(ir.IRInt); !isInt {
			return fieldErr(f.Key, CodeInvalidType, "%q must be an integer", f.Key)
		}
	}
	if rules.MinValue != nil && num < *rules.MinValue {
		return fieldErr(f.Key, CodeTooSmall, "%q must be at least %v", f.Key, *rules.MinValue)
	}
	if rules.MaxValue != nil && num > *rules.MaxValue {
		return fieldErr(f.Key, CodeTooBig, "%q must be at most %v", f.Key, *rules.MaxValue)
	}
	if rules.Step != nil && *rules.Step > 0 && !onStep(num, *rules.Step) {
		return fieldErr(f.Key, CodeStep, "%q must follow a step of %v", f.Key, *rules.Step)
	}
	return nil
}

// onStep accepts values whose remainder modulo step is within tolerance of
// zero or of step itself.
func onStep(value, step float64) bool {
	rem := math.Abs(math.Mod(value, step))
	return rem <= stepTolerance || math.Abs(rem-step) <= stepTolerance
}

func (v *Validator) checkEntryRef(ctx context.Context, f ir.FieldDef, value ir.IRValue) error {
	id, ok := value.(ir.IRInt)
	if !ok {
		return fieldErr(f.Key, CodeInvalidType, "%q must be an entry id (integer), got %s", f.Key, ir.KindOf(value))
	}
	rules, _ := f.Rules.(ir.EntryRules)
	if len(rules.Schemes) == 0 {
		return nil
	}
	if v.refs == nil {
		return fieldErr(f.Key, CodeInvalidReference, "%q references entry %d which cannot be resolved", f.Key, id)
	}

	schemeID, found, err := v.refs.EntryScheme(ctx, int64(id))
	if err != nil {
		return fmt.Errorf("resolve entry %d for %q: %w", id, f.Key, err)
	}
	if !found {
		return fieldErr(f.Key, CodeInvalidReference, "%q references missing entry %d", f.Key, id)
	}
	if !slices.Contains(rules.Schemes, schemeID) {
		return fieldErr(f.Key, CodeInvalidReference, "%q references entry %d from an unauthorized scheme", f.Key, id)
	}
	return nil
}

func (v *Validator) checkUploadRef(ctx context.Context, f ir.FieldDef, value ir.IRValue) error {
	id, ok := value.(ir.IRInt)
	if !ok {
		return fieldErr(f.Key, CodeInvalidType, "%q must be an upload id (integer), got %s", f.Key, ir.KindOf(value))
	}
	rules, _ := f.Rules.(ir.UploadRules)
	if rules.IsZero() {
		return nil
	}
	if v.refs == nil {
		return fieldErr(f.Key, CodeInvalidReference, "%q references upload %d which cannot be resolved", f.Key, id)
	}

	info, found, err := v.refs.Upload(ctx, int64(id))
	if err != nil {
		return fmt.Errorf("resolve upload %d for %q: %w", id, f.Key, err)
	}
	if !found {
		return fieldErr(f.Key, CodeInvalidReference, "%q references missing upload %d", f.Key, id)
	}
	if len(rules.Mimetypes) > 0 && !slices.Contains(rules.Mimetypes, info.Mime) {
		return fieldErr(f.Key, CodeInvalidReference, "%q upload %d has disallowed type %s", f.Key, id, info.Mime)
	}
	if rules.MinSize != nil && info.Size < *rules.MinSize {
		return fieldErr(f.Key, CodeTooSmall, "%q upload %d is smaller than %d bytes", f.Key, id, *rules.MinSize)
	}
	if rules.MaxSize != nil && info.Size > *rules.MaxSize {
		return fieldErr(f.Key, CodeTooBig, "%q upload %d is larger than %d bytes", f.Key, id, *rules.MaxSize)
	}
	return nil
}
