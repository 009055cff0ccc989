package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"larder/internal/models"
	"larder/internal/session"
)

// ListIngredients returns every stored ingredient of the caller
func (s *Server) ListIngredients(c *gin.Context) {
	items, err := s.workspace(c).Ingredients.FetchAll(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetIngredient returns a single ingredient
func (s *Server) GetIngredient(c *gin.Context) {
	item, err := s.workspace(c).Ingredients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// StartSession opens an add, edit or purchase session. Edit and purchase
// load the ingredient named by ingredientId.
func (s *Server) StartSession(c *gin.Context) {
	var req struct {
		Mode         session.Mode `json:"mode" binding:"required"`
		IngredientID string       `json:"ingredientId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws := s.workspace(c)
	var rec *models.Ingredient
	if req.Mode != session.ModeNew {
		if req.IngredientID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ingredientId required for " + string(req.Mode)})
			return
		}
		var err error
		if rec, err = ws.Ingredients.Get(c.Request.Context(), req.IngredientID); err != nil {
			abortWithError(c, err)
			return
		}
	}

	id, sess, err := ws.StartSession(c.Request.Context(), req.Mode, rec)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "session": sess.Snapshot()})
}

func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.workspace(c).Session(c.Param("sid"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return sess, true
}

// respondSession writes the snapshot, or the error alongside it
func respondSession(c *gin.Context, sess *session.Session, err error) {
	snap := sess.Snapshot()
	if err == nil {
		c.JSON(http.StatusOK, snap)
		return
	}
	body := gin.H{"error": err.Error(), "session": snap}
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	c.JSON(statusFor(err), body)
}

// respondFinal writes the result of a transition and forgets the session
// once it has reached a terminal state
func (s *Server) respondFinal(c *gin.Context, sess *session.Session, err error) {
	respondSession(c, sess, err)
	if sess.State().Terminal() {
		s.workspace(c).EndSession(c.Param("sid"))
	}
}

// GetSession returns the session state
func (s *Server) GetSession(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		c.JSON(http.StatusOK, sess.Snapshot())
	}
}

// EndSession forgets the session, cancelling it if still open
func (s *Server) EndSession(c *gin.Context) {
	ws := s.workspace(c)
	if _, err := ws.Session(c.Param("sid")); err != nil {
		abortWithError(c, err)
		return
	}
	ws.EndSession(c.Param("sid"))
	c.Status(http.StatusNoContent)
}

// SetSessionField sets one form value. Choosing the sentinel answers 202
// with the custom option prompt open.
func (s *Server) SetSessionField(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	field, err := session.ParseField(c.Param("field"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = sess.SetField(field, req.Value)
	if errors.Is(err, session.ErrPromptRequired) {
		c.JSON(http.StatusAccepted, sess.Snapshot())
		return
	}
	respondSession(c, sess, err)
}

// SubmitPrompt answers the open custom option prompt
func (s *Server) SubmitPrompt(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, err := sess.SubmitPrompt(c.Request.Context(), req.Value)
	respondSession(c, sess, err)
}

// DismissPrompt closes the custom option prompt
func (s *Server) DismissPrompt(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		respondSession(c, sess, sess.DismissPrompt())
	}
}

// ConfirmSession validates and commits the ingredient
func (s *Server) ConfirmSession(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		s.respondFinal(c, sess, sess.Confirm(c.Request.Context()))
	}
}

// CancelSession cancels; a purchase answers 202 until the cancel is confirmed
func (s *Server) CancelSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	err := sess.Cancel()
	if errors.Is(err, session.ErrCancelNeedsConfirmation) {
		c.JSON(http.StatusAccepted, sess.Snapshot())
		return
	}
	s.respondFinal(c, sess, err)
}

// ConfirmCancel honors a pending purchase cancel
func (s *Server) ConfirmCancel(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		s.respondFinal(c, sess, sess.ConfirmCancel())
	}
}

// ResumeSession withdraws a pending purchase cancel
func (s *Server) ResumeSession(c *gin.Context) {
	if sess, ok := s.session(c); ok {
		respondSession(c, sess, sess.ResumeEditing())
	}
}

// DeleteIngredient removes the ingredient of an edit session and ends it
func (s *Server) DeleteIngredient(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Delete(c.Request.Context()); err != nil {
		respondSession(c, sess, err)
		return
	}
	s.workspace(c).EndSession(c.Param("sid"))
	c.JSON(http.StatusOK, gin.H{"message": "Ingredient deleted"})
}
