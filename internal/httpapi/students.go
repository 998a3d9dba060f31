package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
	"github.com/sachinfortude/RAMP-UP/internal/sheet"
	"github.com/sachinfortude/RAMP-UP/internal/student"
)

// studentRequest takes the birth date as text so clients can send a plain
// calendar date.
type studentRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	DateOfBirth string `json:"dateOfBirth"`
	CourseID    string `json:"courseId"`
}

func (r studentRequest) input() (student.Input, error) {
	var dob time.Time
	if r.DateOfBirth != "" {
		var err error
		dob, err = sheet.ParseDate(r.DateOfBirth)
		if err != nil {
			return student.Input{}, apperrors.Validation("dateOfBirth is not a valid date").
				WithDetails(map[string]any{"dateOfBirth": "must be a date such as 2001-04-30"})
		}
	}
	return student.Input{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Email:       r.Email,
		DateOfBirth: dob,
		CourseID:    r.CourseID,
	}, nil
}

func (h *handler) bindStudent(c *gin.Context) (student.Input, bool) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperrors.Validation("invalid request body"))
		return student.Input{}, false
	}
	in, err := req.input()
	if err != nil {
		h.writeError(c, err)
		return student.Input{}, false
	}
	return in, true
}

func (h *handler) createStudent(c *gin.Context) {
	in, ok := h.bindStudent(c)
	if !ok {
		return
	}
	rec, err := h.Students.Create(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *handler) listStudents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(student.DefaultLimit)))
	p, err := h.Students.List(c.Request.Context(), page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) getStudent(c *gin.Context) {
	rec, err := h.Students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) updateStudent(c *gin.Context) {
	in, ok := h.bindStudent(c)
	if !ok {
		return
	}
	rec, err := h.Students.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) deleteStudent(c *gin.Context) {
	rec, err := h.Students.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) courseStudents(c *gin.Context) {
	recs, err := h.Students.ForCourse(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if recs == nil {
		recs = []student.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"students": recs})
}
