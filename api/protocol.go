package api

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const todoBodyMaxSize = 64 * 1024 // 64 KiB

// POST / response body
type createTodoResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// JSON request body accepted by POST / and PUT /id/:id.
type todoBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsDone      *bool   `json:"isDone"`
}

// todoParams holds the optional fields of a create or update request.
// A nil field was not supplied.
type todoParams struct {
	Title       *string
	Description *string
	IsDone      *string
}

var errInvalidBody = errors.New("invalid body")

// bindTodoParams reads title, description and isDone from a JSON body or,
// for any other request, from the query string and form values.
func bindTodoParams(c echo.Context) (todoParams, error) {
	req := c.Request()
	if isJSONRequest(req) && req.ContentLength != 0 {
		return decodeTodoBody(req.Body)
	}

	var values map[string][]string
	if isFormRequest(req) {
		form, err := c.FormParams()
		if err != nil {
			return todoParams{}, errInvalidBody
		}
		values = form
	} else {
		values = c.QueryParams()
	}

	return todoParams{
		Title:       firstValue(values, "title"),
		Description: firstValue(values, "description"),
		IsDone:      firstValue(values, "isDone"),
	}, nil
}

func decodeTodoBody(body io.Reader) (todoParams, error) {
	lr := io.LimitReader(body, todoBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()

	var b todoBody
	if err := dec.Decode(&b); err != nil {
		return todoParams{}, errInvalidBody
	}
	p := todoParams{Title: b.Title, Description: b.Description}
	if b.IsDone != nil {
		v := "false"
		if *b.IsDone {
			v = "true"
		}
		p.IsDone = &v
	}
	return p, nil
}

func firstValue(values map[string][]string, key string) *string {
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

func isJSONRequest(req *http.Request) bool {
	return mediaType(req) == echo.MIMEApplicationJSON
}

func isFormRequest(req *http.Request) bool {
	mt := mediaType(req)
	return mt == echo.MIMEApplicationForm || mt == echo.MIMEMultipartForm
}

func mediaType(req *http.Request) string {
	ct := req.Header.Get(echo.HeaderContentType)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}
