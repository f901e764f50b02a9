package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/validator"
)

const (
	defaultQuestionCount = 10
	maxMultipartMemory   = 32 << 20

	variantFieldPrefix = "variant_"
	answerFieldPrefix  = "answer_"
)

func isJSONBody(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), gin.MIMEJSON)
}

// postForm parses urlencoded and multipart bodies alike
func postForm(c *gin.Context) error {
	err := c.Request.ParseMultipartForm(maxMultipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return c.Request.ParseForm()
	}
	return err
}

func fieldError(field, rule, message string) error {
	return &services.ValidationError{Errors: validator.NewFieldError(field, rule, message)}
}

// formVariants collects variant_a..variant_j, skipping blank ones. present
// reports whether the form carried any variant field at all.
func formVariants(c *gin.Context) (variants []services.VariantInput, present bool) {
	variants = []services.VariantInput{}
	for _, r := range models.VariantLetters {
		letter := string(r)
		key := variantFieldPrefix + strings.ToLower(letter)
		text, ok := c.GetPostForm(key)
		if !ok {
			continue
		}
		present = true
		if text = strings.TrimSpace(text); text != "" {
			variants = append(variants, services.VariantInput{Letter: letter, Text: text})
		}
	}
	return variants, present
}

func checkbox(c *gin.Context, name string) bool {
	switch strings.ToLower(c.PostForm(name)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// formImage opens the optional image upload. The returned closer is never nil.
func formImage(c *gin.Context, field string) (*services.ImageUpload, io.Closer, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, io.NopCloser(nil), nil
		}
		return nil, io.NopCloser(nil), err
	}
	return openUpload(header)
}

func openUpload(header *multipart.FileHeader) (*services.ImageUpload, io.Closer, error) {
	file, err := header.Open()
	if err != nil {
		return nil, io.NopCloser(nil), err
	}
	return &services.ImageUpload{Filename: header.Filename, Reader: file}, file, nil
}

// ===== REQUEST BINDING =====

func bindCreateQuestion(c *gin.Context) (*services.CreateQuestionRequest, error) {
	var req services.CreateQuestionRequest
	if isJSONBody(c) {
		return &req, c.ShouldBindJSON(&req)
	}
	if err := postForm(c); err != nil {
		return nil, err
	}
	if err := c.ShouldBind(&req); err != nil {
		return nil, err
	}
	req.Variants, _ = formVariants(c)
	req.Text = strings.TrimSpace(req.Text)
	req.CorrectAnswer = strings.ToUpper(strings.TrimSpace(req.CorrectAnswer))
	return &req, nil
}

func bindUpdateQuestion(c *gin.Context) (*services.UpdateQuestionRequest, error) {
	var req services.UpdateQuestionRequest
	if isJSONBody(c) {
		return &req, c.ShouldBindJSON(&req)
	}
	if err := postForm(c); err != nil {
		return nil, err
	}
	if err := c.ShouldBind(&req); err != nil {
		return nil, err
	}
	if variants, present := formVariants(c); present {
		req.Variants = variants
	}
	if req.Text != nil {
		text := strings.TrimSpace(*req.Text)
		req.Text = &text
	}
	if req.CorrectAnswer != nil {
		answer := strings.ToUpper(strings.TrimSpace(*req.CorrectAnswer))
		req.CorrectAnswer = &answer
	}
	req.RemoveImage = checkbox(c, "remove_image")
	return &req, nil
}

// bindQuestionCount reads num_questions, falling back to the default length
func bindQuestionCount(c *gin.Context) (int, error) {
	if isJSONBody(c) {
		var req services.StartTestRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			return 0, fieldError("num_questions", "integer", "num_questions must be an integer")
		}
		if req.NumQuestions == nil {
			return defaultQuestionCount, nil
		}
		return *req.NumQuestions, nil
	}

	raw := strings.TrimSpace(c.PostForm("num_questions"))
	if raw == "" {
		return defaultQuestionCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError("num_questions", "integer", "num_questions must be an integer")
	}
	return n, nil
}

// bindSubmit accepts either a JSON body or answer_<question id> form fields
func bindSubmit(c *gin.Context) (*services.SubmitTestRequest, error) {
	var req services.SubmitTestRequest
	if isJSONBody(c) {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return &req, nil
	}

	if err := postForm(c); err != nil {
		return nil, err
	}
	if err := c.ShouldBind(&req); err != nil {
		return nil, err
	}
	req.Answers = make(map[uint]string)
	for key, values := range c.Request.PostForm {
		if !strings.HasPrefix(key, answerFieldPrefix) || len(values) == 0 {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(key, answerFieldPrefix), 10, 32)
		if err != nil || id == 0 {
			continue
		}
		req.Answers[uint(id)] = values[0]
	}
	return &req, nil
}
