// Package form движок формы: значения из схемы и существующей записи,
// проверка по порядку полей, приведение к сетевому виду и отправка.
package form

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"backoffice/internal/entity"
	"backoffice/internal/schema"
)

// Коды ошибок полей.
const (
	CodeRequired     = "required"
	CodeTypeMismatch = "type_mismatch"
	CodeInvalid      = "invalid"
	CodeUnknownField = "unknown_field"
)

// DefaultPlaceholder ссылка, которую получает blob-поле, если загрузка не удалась.
const DefaultPlaceholder = "/static/placeholder.png"

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError все ошибки формы сразу. errors.Is(err, entity.ErrValidationFailed).
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == entity.ErrValidationFailed }

// BlobHandle выбранный файл: байты живут только в форме, наружу уходит ссылка.
type BlobHandle struct {
	Name        string
	ContentType string
	Data        []byte
	Preview     string
}

// Uploader превращает байты в постоянную ссылку.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// SubmitFunc получает готовую карту атрибутов.
type SubmitFunc func(ctx context.Context, attrs map[string]any) error

// Form состояние одной формы. Не предназначена для конкурентного использования.
type Form struct {
	schema      *schema.Schema
	existing    *entity.Entity
	values      map[string]any
	blobs       map[string]BlobHandle
	touched     map[string]bool
	errs        map[string]FieldError
	uploader    Uploader
	placeholder string
	log         *slog.Logger
}

type Option func(*Form)

func WithUploader(u Uploader) Option { return func(f *Form) { f.uploader = u } }

func WithPlaceholder(ref string) Option {
	return func(f *Form) {
		if ref != "" {
			f.placeholder = ref
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Form) {
		if l != nil {
			f.log = l
		}
	}
}

// New начальное значение поля: existing[name] ?? default ?? нулевое значение вида
// (false для boolean, "" для остальных).
func New(s *schema.Schema, existing *entity.Entity, opts ...Option) *Form {
	f := &Form{
		schema:      s,
		values:      make(map[string]any, len(s.Fields)),
		blobs:       map[string]BlobHandle{},
		touched:     map[string]bool{},
		errs:        map[string]FieldError{},
		placeholder: DefaultPlaceholder,
		log:         slog.Default(),
	}
	if existing != nil {
		cp := existing.Clone()
		f.existing = &cp
	}
	for _, o := range opts {
		o(f)
	}
	for _, fd := range s.Fields {
		f.values[fd.Name] = initial(fd, f.existing)
	}
	return f
}

func initial(fd schema.Field, existing *entity.Entity) any {
	if existing != nil {
		if v, ok := existing.Get(fd.Name); ok {
			return v
		}
	}
	if fd.Default != nil {
		return fd.Default
	}
	return fd.Kind.ZeroValue()
}

// Existing редактируемая запись или nil для новой.
func (f *Form) Existing() *entity.Entity { return f.existing }

func (f *Form) Schema() *schema.Schema { return f.schema }

// Set меняет значение поля и сбрасывает его ошибку. Поле считается изменённым,
// даже если значение совпало с прежним.
func (f *Form) Set(name string, v any) error {
	if _, ok := f.schema.Field(name); !ok {
		return fmt.Errorf("%s has no field %q", f.schema.Kind, name)
	}
	f.values[name] = v
	f.touched[name] = true
	delete(f.errs, name)
	return nil
}

// SetAll применяет карту значений; неизвестные ключи молча пропускаются.
func (f *Form) SetAll(values map[string]any) {
	for k, v := range values {
		_ = f.Set(k, v)
	}
}

// Bind как SetAll, но неизвестные ключи возвращает ошибками unknown_field.
// Служебные id и _provisional пропускаются.
func (f *Form) Bind(values map[string]any) []FieldError {
	var errs []FieldError
	for k, v := range values {
		if k == entity.KeyID || k == entity.KeyProvisional {
			continue
		}
		if err := f.Set(k, v); err != nil {
			errs = append(errs, FieldError{Code: CodeUnknownField, Field: k, Message: "Unknown field"})
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func (f *Form) Value(name string) any { return f.values[name] }

// Changed поля, заданные через Set/Bind или AttachBlob, в порядке схемы.
func (f *Form) Changed() []string {
	var out []string
	for _, fd := range f.schema.Fields {
		if f.touched[fd.Name] {
			out = append(out, fd.Name)
		}
	}
	return out
}

// Values копия текущих (ещё не приведённых) значений.
func (f *Form) Values() map[string]any {
	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// AttachBlob запоминает файл для blob-поля. Preview вычисляется, если не задан.
func (f *Form) AttachBlob(name string, h BlobHandle) error {
	fd, ok := f.schema.Field(name)
	if !ok {
		return fmt.Errorf("%s has no field %q", f.schema.Kind, name)
	}
	if fd.Kind != schema.KindBlob {
		return fmt.Errorf("field %q is %s, not blob", name, fd.Kind)
	}
	if h.Preview == "" {
		h.Preview = preview(h)
	}
	f.blobs[name] = h
	f.touched[name] = true
	delete(f.errs, name)
	return nil
}

// Blob прикреплённый файл поля.
func (f *Form) Blob(name string) (BlobHandle, bool) {
	h, ok := f.blobs[name]
	return h, ok
}

// картинки до 256 КБ идут data URL, остальное именем файла
func preview(h BlobHandle) string {
	if strings.HasPrefix(h.ContentType, "image/") && len(h.Data) <= 256<<10 {
		return "data:" + h.ContentType + ";base64," + base64.StdEncoding.EncodeToString(h.Data)
	}
	return h.Name
}

// ==== Проверка ====

// Validate проверяет поля в порядке схемы: required, затем приведение, затем
// пользовательский валидатор. Не больше одной ошибки на поле.
func (f *Form) Validate() []FieldError {
	f.errs = map[string]FieldError{}
	var out []FieldError
	for _, fd := range f.schema.Fields {
		if fe, bad := f.check(fd); bad {
			f.errs[fd.Name] = fe
			out = append(out, fe)
		}
	}
	return out
}

func (f *Form) check(fd schema.Field) (FieldError, bool) {
	v := f.values[fd.Name]
	h, attached := f.blobs[fd.Name]

	if fd.Required && !attached && schema.Empty(v) {
		return FieldError{Code: CodeRequired, Field: fd.Name, Message: fd.Label + " is required"}, true
	}
	if attached {
		// ссылки ещё нет, валидатор видит имя файла
		v = h.Name
	} else if fd.Coerce != nil {
		cv, err := fd.Coerce(v)
		if err != nil {
			return FieldError{Code: CodeTypeMismatch, Field: fd.Name, Message: fd.Label + " " + err.Error()}, true
		}
		v = cv
	}
	if fd.Validator != nil {
		if err := fd.Validator(v, f.values); err != nil {
			return FieldError{Code: CodeInvalid, Field: fd.Name, Message: err.Error()}, true
		}
	}
	return FieldError{}, false
}

// Errors ошибки последней проверки по имени поля.
func (f *Form) Errors() map[string]FieldError {
	out := make(map[string]FieldError, len(f.errs))
	for k, v := range f.errs {
		out[k] = v
	}
	return out
}

// ==== Отправка ====

// Attributes приводит поля к сетевому виду и загружает прикреплённые файлы.
// Для новой записи отдаёт все поля, для существующей только Changed: остальное
// сервер и коллекция берут из текущей версии записи, а не из копии формы.
// Вызывать после успешной Validate.
func (f *Form) Attributes(ctx context.Context) (map[string]any, error) {
	attrs := make(map[string]any, len(f.schema.Fields))
	for _, fd := range f.schema.Fields {
		if f.existing != nil && !f.touched[fd.Name] {
			continue
		}
		if h, ok := f.blobs[fd.Name]; ok {
			attrs[fd.Name] = f.upload(ctx, fd.Name, h)
			continue
		}
		v := f.values[fd.Name]
		if fd.Coerce != nil {
			cv, err := fd.Coerce(v)
			if err != nil {
				return nil, &ValidationError{Errors: []FieldError{{Code: CodeTypeMismatch, Field: fd.Name, Message: fd.Label + " " + err.Error()}}}
			}
			v = cv
		}
		attrs[fd.Name] = v
	}
	return attrs, nil
}

// upload отказ загрузки не роняет отправку: поле получает заглушку.
func (f *Form) upload(ctx context.Context, field string, h BlobHandle) string {
	if f.uploader == nil {
		return f.placeholder
	}
	ref, err := f.uploader.Upload(ctx, h.Name, bytes.NewReader(h.Data))
	if err != nil || ref == "" {
		f.log.Warn("blob upload failed, using placeholder", "field", field, "file", h.Name, "err", err)
		return f.placeholder
	}
	return ref
}

// Submit блокируется при любой ошибке проверки (все ошибки в *ValidationError),
// иначе вызывает fn ровно один раз с приведённой картой атрибутов.
func (f *Form) Submit(ctx context.Context, fn SubmitFunc) error {
	if errs := f.Validate(); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	attrs, err := f.Attributes(ctx)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			for _, fe := range ve.Errors {
				f.errs[fe.Field] = fe
			}
		}
		return err
	}
	if err := fn(ctx, attrs); err != nil {
		return err
	}
	// байты больше не нужны
	f.blobs = map[string]BlobHandle{}
	return nil
}
