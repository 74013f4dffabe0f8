package minimact

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestChangeDataAccessors(t *testing.T) {
	data := NewChangeData(map[string]any{
		"title":    "Todos",
		"count":    float64(3), // JSON numbers decode as float64
		"ratio":    0.5,
		"showDone": true,
	})

	if got := data.GetString("title"); got != "Todos" {
		t.Errorf("GetString = %q", got)
	}
	if got := data.GetInt("count"); got != 3 {
		t.Errorf("GetInt = %d", got)
	}
	if got := data.GetFloat("ratio"); got != 0.5 {
		t.Errorf("GetFloat = %f", got)
	}
	if !data.GetBool("showDone") {
		t.Error("GetBool = false")
	}
	if !data.Has("title") || data.Has("ghost") {
		t.Error("Has misreports keys")
	}
	if data.Get("count") != float64(3) {
		t.Errorf("Get = %v", data.Get("count"))
	}

	// Wrong-type access returns zero values, never panics.
	if data.GetString("count") != "" || data.GetInt("title") != 0 || data.GetBool("ratio") {
		t.Error("wrong-type access did not zero out")
	}
}

func TestChangeDataBind(t *testing.T) {
	type todoChange struct {
		Title string `json:"title"`
		Count int    `json:"count"`
	}

	data := NewChangeData(map[string]any{"title": "Todos", "count": 3})
	var change todoChange
	if err := data.Bind(&change); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if change.Title != "Todos" || change.Count != 3 {
		t.Errorf("change = %+v", change)
	}
}

func TestChangeDataBindAndValidate(t *testing.T) {
	type todoChange struct {
		Title string `json:"title" validate:"required"`
		Count int    `json:"count" validate:"min=0"`
	}
	validate := validator.New()

	var ok todoChange
	data := NewChangeData(map[string]any{"title": "x", "count": 1})
	if err := data.BindAndValidate(&ok, validate); err != nil {
		t.Fatalf("BindAndValidate: %v", err)
	}

	var missing todoChange
	data = NewChangeData(map[string]any{"count": 1})
	err := data.BindAndValidate(&missing, validate)
	if err == nil {
		t.Fatal("missing required field accepted")
	}
	multi, isMulti := err.(MultiError)
	if !isMulti || len(multi) != 1 {
		t.Fatalf("err = %#v", err)
	}
	if multi[0].Field != "title" || !strings.Contains(multi[0].Message, "required") {
		t.Errorf("field error = %+v", multi[0])
	}
}

func TestMultiErrorMessage(t *testing.T) {
	m := MultiError{
		{Field: "a", Message: "a is required"},
		{Field: "b", Message: "b is invalid"},
	}
	if got := m.Error(); got != "a: a is required; b: b is invalid" {
		t.Errorf("Error() = %q", got)
	}
	if (MultiError{}).Error() != "" {
		t.Error("empty MultiError should render empty")
	}
}
