// Package protocol defines the wire frames exchanged between server and
// clients. Every frame is a single JSON object with a mandatory "type"
// discriminator; the remaining fields depend on the type.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/teamboard/teamboard/internal/model"
)

// Command types sent by clients.
const (
	TypeAuth             = "auth"
	TypeRequestFullState = "REQUEST_FULL_STATE"
	TypeAddProject       = "ADD_PROJECT"
	TypeUpdateProject    = "UPDATE_PROJECT"
	TypeDeleteProject    = "DELETE_PROJECT"
	TypeAddTodo          = "ADD_TODO"
	TypeUpdateTodo       = "UPDATE_TODO"
	TypeDeleteTodo       = "DELETE_TODO"
	TypeAddAssignee      = "ADD_ASSIGNEE"
	TypeDeleteAssignee   = "DELETE_ASSIGNEE"
	TypeGetMemo          = "GET_MEMO"
	TypeUpdateMemo       = "UPDATE_MEMO"
)

// Event types sent by the server.
const (
	TypeAuthResult      = "auth_result"
	TypeError           = "error"
	TypeFullStateUpdate = "FULL_STATE_UPDATE"
	TypeProjectAdded    = "PROJECT_ADDED"
	TypeProjectUpdated  = "PROJECT_UPDATED"
	TypeProjectDeleted  = "PROJECT_DELETED"
	TypeTodoAdded       = "TODO_ADDED"
	TypeTodoUpdated     = "TODO_UPDATED"
	TypeTodoDeleted     = "TODO_DELETED"
	TypeAssigneeAdded   = "ASSIGNEE_ADDED"
	TypeAssigneeDeleted = "ASSIGNEE_DELETED"
	TypeMemoUpdate      = "MEMO_UPDATE"
)

// Message is the envelope for every frame in both directions. Fields are
// populated according to Type; everything else is omitted on the wire.
type Message struct {
	Type string `json:"type"`

	// Command fields.
	Password     string `json:"password,omitempty"`
	Name         string `json:"name,omitempty"`
	ProjectID    string `json:"projectId,omitempty"`
	TodoID       string `json:"todoId,omitempty"`
	Text         string `json:"text,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`

	// ADD_TODO fields (assignee and due date optional).
	Assignee string         `json:"assignee,omitempty"`
	Priority model.Priority `json:"priority,omitempty"`
	DueDate  *model.Date    `json:"dueDate,omitempty"`

	// Shared entity payloads.
	Project *model.Project `json:"project,omitempty"`
	Todo    *model.Todo    `json:"todo,omitempty"`

	// Memo content. A pointer so an empty memo survives the round trip.
	Content *string `json:"content,omitempty"`

	// FULL_STATE_UPDATE payload.
	Projects         []model.Project         `json:"projects,omitempty"`
	Todos            map[string][]model.Todo `json:"todos,omitempty"`
	ProjectAssignees map[string][]string     `json:"projectAssignees,omitempty"`

	// auth_result and error payloads.
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// Decode parses a raw frame. It only guarantees well-formed JSON with a
// non-empty type; per-command field validation is the command processor's
// responsibility.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("frame missing type field")
	}
	return &msg, nil
}

// Encode serializes a frame for the wire.
func Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", msg.Type, err)
	}
	return data, nil
}

// AuthResult builds an auth_result frame.
func AuthResult(success bool) *Message {
	return &Message{Type: TypeAuthResult, Success: &success}
}

// Error builds an error frame addressed to one connection.
func Error(message string) *Message {
	return &Message{Type: TypeError, Message: message}
}

// FullState builds a FULL_STATE_UPDATE frame. Memo content is not part of
// the snapshot; clients fetch it per project with GET_MEMO.
func FullState(projects []model.Project, todos map[string][]model.Todo, assignees map[string][]string) *Message {
	if projects == nil {
		projects = []model.Project{}
	}
	if todos == nil {
		todos = map[string][]model.Todo{}
	}
	if assignees == nil {
		assignees = map[string][]string{}
	}
	return &Message{
		Type:             TypeFullStateUpdate,
		Projects:         projects,
		Todos:            todos,
		ProjectAssignees: assignees,
	}
}

// ProjectAdded builds a PROJECT_ADDED frame.
func ProjectAdded(p model.Project) *Message {
	return &Message{Type: TypeProjectAdded, Project: &p}
}

// ProjectUpdated builds a PROJECT_UPDATED frame.
func ProjectUpdated(p model.Project) *Message {
	return &Message{Type: TypeProjectUpdated, Project: &p}
}

// ProjectDeleted builds a PROJECT_DELETED frame.
func ProjectDeleted(projectID string) *Message {
	return &Message{Type: TypeProjectDeleted, ProjectID: projectID}
}

// TodoAdded builds a TODO_ADDED frame.
func TodoAdded(projectID string, t model.Todo) *Message {
	return &Message{Type: TypeTodoAdded, ProjectID: projectID, Todo: &t}
}

// TodoUpdated builds a TODO_UPDATED frame.
func TodoUpdated(projectID string, t model.Todo) *Message {
	return &Message{Type: TypeTodoUpdated, ProjectID: projectID, Todo: &t}
}

// TodoDeleted builds a TODO_DELETED frame.
func TodoDeleted(projectID, todoID string) *Message {
	return &Message{Type: TypeTodoDeleted, ProjectID: projectID, TodoID: todoID}
}

// AssigneeAdded builds an ASSIGNEE_ADDED frame.
func AssigneeAdded(projectID, name string) *Message {
	return &Message{Type: TypeAssigneeAdded, ProjectID: projectID, AssigneeName: name}
}

// AssigneeDeleted builds an ASSIGNEE_DELETED frame.
func AssigneeDeleted(projectID, name string) *Message {
	return &Message{Type: TypeAssigneeDeleted, ProjectID: projectID, AssigneeName: name}
}

// MemoUpdate builds a MEMO_UPDATE frame.
func MemoUpdate(projectID, content string) *Message {
	return &Message{Type: TypeMemoUpdate, ProjectID: projectID, Content: &content}
}
