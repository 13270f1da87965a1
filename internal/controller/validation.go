package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// Report body fields by their JSON names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// issue is one field-level validation failure in a 422 response.
type issue struct {
	Type string `json:"type"`
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
}

func respondValidation(c *gin.Context, issues []issue) {
	respondJSON(c, http.StatusUnprocessableEntity, errorResponse{Detail: issues})
}

// pathID parses the :id parameter, writing a 422 when it is not an integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondValidation(c, []issue{pathIDIssue()})
		return 0, false
	}
	return id, true
}

func pathIDIssue() issue {
	return issue{
		Type: "int_parsing",
		Loc:  []any{"path", "id"},
		Msg:  "Input should be a valid integer, unable to parse string as an integer",
	}
}

// bodyIssues translates a gin binding error into field-level issues.
func bodyIssues(err error) []issue {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		fieldErrs validator.ValidationErrors
	)
	switch {
	case errors.Is(err, io.EOF):
		return []issue{{Type: "missing", Loc: []any{"body"}, Msg: "Field required"}}
	case errors.As(err, &syntaxErr):
		return []issue{{Type: "json_invalid", Loc: []any{"body", syntaxErr.Offset}, Msg: "JSON decode error"}}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return []issue{{Type: "json_invalid", Loc: []any{"body"}, Msg: "JSON decode error"}}
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return []issue{{
				Type: "model_attributes_type",
				Loc:  []any{"body"},
				Msg:  "Input should be a valid dictionary or object to extract fields from",
			}}
		}
		return []issue{{Type: "string_type", Loc: fieldLoc(typeErr.Field), Msg: "Input should be a valid string"}}
	case errors.As(err, &fieldErrs):
		issues := make([]issue, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			it := issue{Type: "value_error", Loc: fieldLoc(fe.Field()), Msg: fe.Error()}
			if fe.Tag() == "required" {
				it.Type, it.Msg = "missing", "Field required"
			}
			issues = append(issues, it)
		}
		return issues
	default:
		return []issue{{Type: "value_error", Loc: []any{"body"}, Msg: err.Error()}}
	}
}

func fieldLoc(path string) []any {
	loc := []any{"body"}
	for _, p := range strings.Split(path, ".") {
		loc = append(loc, p)
	}
	return loc
}
