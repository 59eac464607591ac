package handlers

import (
	"todosync/internal/protocol"
	"todosync/internal/server/models"
)

func toProtocolTodo(t models.Todo) protocol.Todo {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return protocol.Todo{
		ID:        t.ID,
		Title:     t.Title,
		Notes:     t.Notes,
		DueDate:   t.DueDate,
		Tags:      tags,
		Status:    protocol.Status(t.Status),
		Position:  t.Position,
		EditedAt:  t.EditedAt,
		UpdatedAt: t.UpdatedAt,
		CreatedBy: t.CreatedBy,
		UpdatedBy: t.UpdatedBy,
	}
}

func toProtocolTodos(in []models.Todo) []protocol.Todo {
	out := make([]protocol.Todo, len(in))
	for i, t := range in {
		out[i] = toProtocolTodo(t)
	}
	return out
}

func toProtocolTombstoneRefs(in []models.Tombstone) []protocol.TombstoneRef {
	out := make([]protocol.TombstoneRef, len(in))
	for i, t := range in {
		out[i] = protocol.TombstoneRef{ServerID: t.ServerID, DeletedAt: t.DeletedAt}
	}
	return out
}
