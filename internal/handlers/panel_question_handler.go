package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

const panelQuestionsPath = "/panel/questions/"

// PanelQuestionHandler lets administrators maintain the question bank
type PanelQuestionHandler struct {
	BaseHandler
	questions services.QuestionService
}

func NewPanelQuestionHandler(questions services.QuestionService, logger utils.Logger) *PanelQuestionHandler {
	return &PanelQuestionHandler{
		BaseHandler: NewBaseHandler(logger),
		questions:   questions,
	}
}

// ===== CORE CRUD ENDPOINTS =====

// ListQuestions returns every question including correct answers
// @Summary List questions for administration
// @Tags panel
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /panel/questions/ [get]
func (h *PanelQuestionHandler) ListQuestions(c *gin.Context) {
	questions, err := h.questions.AdminList(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions, "total": len(questions)})
}

// AddQuestionPage describes the question form
// @Summary Question form
// @Tags panel
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /panel/questions/add/ [get]
func (h *PanelQuestionHandler) AddQuestionPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"variant_letters": variantLetters()})
}

// AddQuestion creates a question with the next free number
// @Summary Create a question
// @Tags panel
// @Accept json,multipart/form-data,x-www-form-urlencoded
// @Produce json
// @Param request body services.CreateQuestionRequest true "Question"
// @Param image formData file false "Question image"
// @Success 201 {object} map[string]interface{}
// @Success 302 "Redirect to the question list"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Router /panel/questions/add/ [post]
func (h *PanelQuestionHandler) AddQuestion(c *gin.Context) {
	req, err := bindCreateQuestion(c)
	if err != nil {
		h.invalidInput(c, err)
		return
	}

	image, closer, err := formImage(c, "image")
	if err != nil {
		h.invalidInput(c, err)
		return
	}
	defer closer.Close()

	question, err := h.questions.Add(c.Request.Context(), req, image)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Question added", "question_id", question.ID, "number", question.Number)
	finish(c, http.StatusCreated, panelQuestionsPath, gin.H{"question": question})
}

// EditQuestionPage returns a question for its edit form
// @Summary Question edit form
// @Tags panel
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /panel/questions/{id}/edit/ [get]
func (h *PanelQuestionHandler) EditQuestionPage(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	question, err := h.questions.AdminGet(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question": question, "variant_letters": variantLetters()})
}

// EditQuestion changes a question; omitted fields keep their values
// @Summary Update a question
// @Tags panel
// @Accept json,multipart/form-data,x-www-form-urlencoded
// @Produce json
// @Param id path int true "Question ID"
// @Param request body services.UpdateQuestionRequest true "Changes"
// @Param image formData file false "Replacement image"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Redirect to the question list"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /panel/questions/{id}/edit/ [post]
func (h *PanelQuestionHandler) EditQuestion(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	req, err := bindUpdateQuestion(c)
	if err != nil {
		h.invalidInput(c, err)
		return
	}

	image, closer, err := formImage(c, "image")
	if err != nil {
		h.invalidInput(c, err)
		return
	}
	defer closer.Close()

	question, err := h.questions.Edit(c.Request.Context(), id, req, image)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Question updated", "question_id", question.ID)
	finish(c, http.StatusOK, panelQuestionsPath, gin.H{"question": question})
}

// DeleteQuestion removes a question with its image and bookmarks
// @Summary Delete a question
// @Tags panel
// @Param id path int true "Question ID"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Redirect to the question list"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /panel/questions/{id}/delete/ [post]
func (h *PanelQuestionHandler) DeleteQuestion(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.questions.Delete(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Question deleted", "question_id", id)
	finish(c, http.StatusOK, panelQuestionsPath, gin.H{"deleted": id})
}

// ===== SPREADSHEET EXCHANGE =====

// ExportQuestions downloads the whole bank as a workbook
// @Summary Export questions
// @Tags panel
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /panel/questions/export/ [get]
func (h *PanelQuestionHandler) ExportQuestions(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.questions.Export(c.Request.Context(), &buf); err != nil {
		h.handleServiceError(c, err)
		return
	}
	sendWorkbook(c, "questions.xlsx", &buf)
}

// ImportQuestions appends the rows of an uploaded workbook to the bank
// @Summary Import questions
// @Tags panel
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Workbook in the export layout"
// @Success 200 {object} services.ImportResult
// @Failure 400 {object} ErrorResponse "Bad request"
// @Router /panel/questions/import/ [post]
func (h *PanelQuestionHandler) ImportQuestions(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "A workbook file is required", err.Error())
		return
	}
	file, err := header.Open()
	if err != nil {
		h.invalidInput(c, err)
		return
	}
	defer file.Close()

	result, err := h.questions.Import(c.Request.Context(), file)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Questions imported", "created", result.Created, "failed", len(result.Failed))
	c.JSON(http.StatusOK, result)
}

func variantLetters() []string {
	letters := make([]string, 0, models.MaxVariants)
	for _, r := range models.VariantLetters {
		letters = append(letters, string(r))
	}
	return letters
}
