package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/shitan-ai/shitan/internal/observability"
	"github.com/shitan-ai/shitan/pkg/conversation"
)

// User-facing strings. The frontend matches on several of these, keep them
// stable.
const (
	replyNoConversation = "请先创建对话"
	replyEmptyMessage   = "请输入内容"
	replyHistoryCleared = "当前对话历史已清空！"
	replyBotUnavailable = "机器人服务暂不可用"
	msgBadRequest       = "请求格式错误"
	msgCreated          = "新对话创建成功"
	msgMissingID        = "缺少对话ID"
	msgNotFound         = "对话不存在"
	msgDeleted          = "对话已删除"
	msgStarred          = "已标记"
	msgUnstarred        = "已取消标记"
	msgCleared          = "历史记录已清空"
	msgNothingToClear   = "没有可清空的对话"
	unnamedConversation = "未命名"
)

const helpMessage = `🤖 食探机器人命令：
输入“帮助”显示此信息；
输入“清空”清当前对话；
其余任意美食问题直接问即可！`

var clearCommands = map[string]bool{
	"清空": true, "清除": true, "clear": true, "reset": true,
}

var helpCommands = map[string]bool{
	"帮助": true, "help": true, "?": true,
}

const clearAllPage = `<html><head><title>Session 已清理</title></head><body>
<h1>✅ Session 已成功清理！</h1>
<p><a href="/">返回首页</a></p>
</body></html>`

// session loads the caller's conversation state, minting a session cookie on
// first contact. The returned save func persists mutations back to the store.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *conversation.State, func(), error) {
	sid := ""
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		sid = c.Value
	}
	if sid == "" {
		var err error
		sid, err = gonanoid.New()
		if err != nil {
			return "", nil, nil, err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    sid,
			Path:     "/",
			MaxAge:   int(s.sessionTTL / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	state, err := s.sessions.Load(r.Context(), sid)
	if err != nil {
		return "", nil, nil, err
	}

	save := func() {
		if err := s.sessions.Save(r.Context(), sid, state); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to save session")
		}
	}
	return sid, state, save, nil
}

func (s *Server) readBody(r *http.Request) []byte {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil
	}
	return body
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Seed the session so the first /conversations call already has the
	// default conversation.
	_, _, save, err := s.session(w, r)
	if err == nil {
		save()
	}

	if s.templates == nil {
		http.Error(w, "templates not configured", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.Render(w, "index.html", nil); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to render index")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logger := zerolog.Ctx(r.Context())

	body := s.readBody(r)
	if !s.validator.validate(s.validator.chat, body) {
		observability.RecordChatRequest("invalid")
		writeJSON(w, map[string]interface{}{"success": false, "reply": msgBadRequest})
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &req)
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		observability.RecordChatRequest("error")
		writeJSON(w, map[string]interface{}{"success": false, "reply": fmt.Sprintf("内部错误：%T", err)})
		return
	}

	// First contact may have seeded the state just now; persist it even on
	// the non-mutating paths below so the default conversation id is stable
	// across requests.
	active := state.Active()
	save()
	if active == nil {
		writeJSON(w, map[string]interface{}{"success": false, "reply": replyNoConversation})
		return
	}

	input := strings.TrimSpace(req.Message)
	if input == "" {
		observability.RecordChatRequest("empty")
		writeJSON(w, map[string]interface{}{"success": false, "reply": replyEmptyMessage})
		return
	}

	lowered := strings.ToLower(input)
	if clearCommands[lowered] {
		_ = state.Clear(active.ID)
		save()
		observability.RecordChatRequest("command")
		writeJSON(w, map[string]interface{}{"success": true, "reply": replyHistoryCleared})
		return
	}
	if helpCommands[lowered] {
		observability.RecordChatRequest("command")
		writeJSON(w, map[string]interface{}{"success": true, "reply": helpMessage})
		return
	}

	if s.chat == nil {
		observability.RecordChatRequest("degraded")
		writeJSON(w, map[string]interface{}{"success": false, "reply": replyBotUnavailable})
		return
	}

	reply := s.chat.Ask(r.Context(), input, active.Window())
	if err := state.AppendExchange(active.ID, input, reply); err != nil {
		logger.Error().Err(err).Str("conversation_id", active.ID).Msg("Failed to record exchange")
	}
	save()

	observability.RecordChatRequest("ok")
	writeJSON(w, map[string]interface{}{
		"success":         true,
		"reply":           reply,
		"conversation_id": active.ID,
	})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	save()

	list := state.List()
	out := make([]map[string]interface{}, 0, len(list))
	for _, c := range list {
		name := c.Name
		if name == "" {
			name = unnamedConversation
		}
		out = append(out, map[string]interface{}{
			"id":            c.ID,
			"name":          name,
			"last_message":  c.LastMessage,
			"starred":       c.Starred,
			"created_at":    c.CreatedAt,
			"last_updated":  c.LastUpdated,
			"message_count": c.MessageCount,
			"is_current":    c.IsCurrent,
		})
	}
	writeJSON(w, map[string]interface{}{
		"success":                 true,
		"conversations":           out,
		"current_conversation_id": state.ActiveID,
	})
}

func (s *Server) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := s.readBody(r)
	if !s.validator.validate(s.validator.create, body) {
		writeJSON(w, map[string]interface{}{"success": false, "message": msgBadRequest})
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &req)
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	c := state.Create(req.Name)
	save()

	s.broadcaster.Broadcast("conversation.created", map[string]interface{}{
		"conversation_id": c.ID,
		"name":            c.Name,
	})
	writeJSON(w, map[string]interface{}{
		"success":         true,
		"conversation_id": c.ID,
		"message":         msgCreated,
	})
}

func (s *Server) handleSwitchConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := s.readBody(r)
	if !s.validator.validate(s.validator.conversation, body) {
		writeJSON(w, map[string]interface{}{"success": false, "message": msgBadRequest})
		return
	}
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &req)
	}
	if req.ConversationID == "" {
		writeJSON(w, map[string]interface{}{"success": false, "message": msgMissingID})
		return
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	c := state.Switch(req.ConversationID)
	save()

	name := c.Name
	if name == "" {
		name = unnamedConversation
	}
	writeJSON(w, map[string]interface{}{
		"success":           true,
		"conversation_id":   c.ID,
		"history":           c.Turns,
		"conversation_name": name,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := s.readBody(r)
	if !s.validator.validate(s.validator.conversation, body) {
		writeJSON(w, map[string]interface{}{"success": false, "message": msgBadRequest})
		return
	}
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &req)
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	if err := state.Delete(req.ConversationID); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeJSON(w, map[string]interface{}{"success": false, "message": msgNotFound})
			return
		}
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	save()

	s.broadcaster.Broadcast("conversation.deleted", map[string]interface{}{
		"conversation_id": req.ConversationID,
	})
	writeJSON(w, map[string]interface{}{
		"success":                 true,
		"message":                 msgDeleted,
		"current_conversation_id": state.ActiveID,
	})
}

func (s *Server) handleStarConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := s.readBody(r)
	if !s.validator.validate(s.validator.conversation, body) {
		writeJSON(w, map[string]interface{}{"success": false, "message": msgBadRequest})
		return
	}
	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &req)
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	starred, err := state.ToggleStar(req.ConversationID)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": msgNotFound})
		return
	}
	save()

	msg := msgStarred
	if !starred {
		msg = msgUnstarred
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"starred": starred,
		"message": msg,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}

	if state.ActiveID == "" || state.Clear(state.ActiveID) != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": msgNothingToClear})
		return
	}
	save()
	writeJSON(w, map[string]interface{}{"success": true, "message": msgCleared})
}

// handleClearSession drops the whole session and reseeds a default
// conversation. Served as a plain page so it can be hit straight from the
// address bar.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sid, _, _, err := s.session(w, r)
	if err == nil {
		fresh := conversation.NewState()
		if err := s.sessions.Save(r.Context(), sid, fresh); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to reset session")
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, clearAllPage)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, state, save, err := s.session(w, r)
	if err != nil {
		writeJSON(w, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	save()

	writeJSON(w, map[string]interface{}{
		"success":                 true,
		"status":                  s.serviceStatus(),
		"conversation_count":      len(state.Conversations),
		"current_conversation_id": state.ActiveID,
	})
}
