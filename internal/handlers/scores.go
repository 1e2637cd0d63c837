package handlers

import (
  "errors"
  "net/http"
  "strconv"
  "github.com/gin-gonic/gin"
  pkgerrors "github.com/yungbote/roomscore-backend/internal/pkg/errors"
  "github.com/yungbote/roomscore-backend/internal/scoring"
  "github.com/yungbote/roomscore-backend/internal/services"
)

type ScoresHandler struct {
  scoreService services.ScoreService
}

func NewScoresHandler(scoreService services.ScoreService) *ScoresHandler {
  return &ScoresHandler{scoreService: scoreService}
}

type contentScoreResponse struct {
  *scoring.ContentScore
  Summary *scoring.Summary `json:"summary"`
}

func (h *ScoresHandler) GetRoomScores(c *gin.Context) {
  roomID := c.Param("room_id")
  teacherID := c.Query("teacher_id")
  persist, _ := strconv.ParseBool(c.DefaultQuery("persist", "false"))

  var policies []scoring.Policy
  var err error
  if persist {
    policies, err = h.scoreService.RecalculateAndStore(c.Request.Context(), roomID, teacherID)
  } else {
    policies, err = h.scoreService.CalculateRoomScores(c.Request.Context(), roomID, teacherID)
  }
  if err != nil {
    if errors.Is(err, pkgerrors.ErrNotFound) {
      c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
      return
    }
    c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
    return
  }

  out := make([]contentScoreResponse, 0, len(policies))
  for _, policy := range policies {
    state := policy.State()
    out = append(out, contentScoreResponse{
      ContentScore: state,
      Summary:      scoring.Summarize(state.Answers),
    })
  }
  c.JSON(http.StatusOK, gin.H{"room_id": roomID, "scores": out})
}
