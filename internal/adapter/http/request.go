package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/couchcryptid/traffic-eagle/internal/pipeline"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// validatorInstance returns the shared validator. Struct metadata is cached
// inside it, so one instance serves every request.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		if err := validate.RegisterValidation("usstate", func(fl validator.FieldLevel) bool {
			return domain.IsKnownState(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("register usstate validation: %v", err))
		}
	})
	return validate
}

// requestError is a client error reported as VALIDATION_ERROR.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

type ratesQuery struct {
	Year int `validate:"omitempty,min=1900,max=2100"`
}

type analysisQuery struct {
	State  string `validate:"omitempty,usstate"`
	Period string
	Mode   string
	Year   int `validate:"omitempty,min=1900,max=2100"`
}

func parseRatesQuery(r *http.Request) (pipeline.YearSelected, error) {
	year, err := queryInt(r, "year")
	if err != nil {
		return pipeline.YearSelected{}, err
	}
	q := ratesQuery{Year: year}
	if err := validateStruct(&q); err != nil {
		return pipeline.YearSelected{}, err
	}
	return pipeline.YearSelected{Year: q.Year}, nil
}

func parseAnalysisQuery(r *http.Request) (pipeline.AnalysisRequest, error) {
	year, err := queryInt(r, "year")
	if err != nil {
		return pipeline.AnalysisRequest{}, err
	}
	values := r.URL.Query()
	q := analysisQuery{
		State:  strings.TrimSpace(values.Get("state")),
		Period: values.Get("period"),
		Mode:   values.Get("mode"),
		Year:   year,
	}
	if err := validateStruct(&q); err != nil {
		return pipeline.AnalysisRequest{}, err
	}

	period, err := domain.ParsePeriod(q.Period)
	if err != nil {
		return pipeline.AnalysisRequest{}, invalid("period: %v", err)
	}
	mode, err := domain.ParseGraphMode(q.Mode)
	if err != nil {
		return pipeline.AnalysisRequest{}, invalid("mode: %v", err)
	}
	return pipeline.AnalysisRequest{
		State:  q.State,
		Period: period,
		Mode:   mode,
		Year:   q.Year,
	}, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("%s: %q is not an integer", name, raw)
	}
	return n, nil
}

func validateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return invalid("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return invalid("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "usstate":
		return fmt.Sprintf("%s: %q is not a US state code", field, fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s: must be between 1900 and 2100", field)
	default:
		return fmt.Sprintf("%s: failed %s validation", field, fe.Tag())
	}
}
