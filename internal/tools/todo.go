package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"todo-assistant/internal/storage"
)

type todoHandlers struct {
	store storage.Store
}

type addTodoArgs struct {
	Text string `json:"text"`
}

type todoIDArgs struct {
	ID int64 `json:"id"`
}

func (h *todoHandlers) add(ctx context.Context, raw json.RawMessage) Result {
	var args addTodoArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to add todo item", err)
	}
	todo, err := h.store.AddTodo(ctx, args.Text)
	if err != nil {
		log.Printf("❌ Error adding todo: %v", err)
		return Fail("Failed to add todo item", err)
	}
	return OK(fmt.Sprintf("%q was successfully added to your To Do list with ID: %d", args.Text, todo.ID),
		map[string]any{"todo": todo})
}

func (h *todoHandlers) list(ctx context.Context, _ json.RawMessage) Result {
	todos, err := h.store.ListTodos(ctx)
	if err != nil {
		log.Printf("❌ Error getting todos: %v", err)
		return Fail("Failed to retrieve todo items", err)
	}
	if len(todos) == 0 {
		return OK("You have no To Do items yet. Use add_todo to create one!",
			map[string]any{"todos": []storage.Todo{}})
	}
	return OK(fmt.Sprintf("You have %d To Do item(s)", len(todos)), map[string]any{"todos": todos})
}

func (h *todoHandlers) remove(ctx context.Context, raw json.RawMessage) Result {
	var args todoIDArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to remove todo item", err)
	}
	todo, err := h.store.GetTodo(ctx, args.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return Fail(fmt.Sprintf("Error: No To Do item found with ID %d", args.ID), nil)
	}
	if err != nil {
		log.Printf("❌ Error removing todo %d: %v", args.ID, err)
		return Fail("Failed to remove todo item", err)
	}
	if err := h.store.RemoveTodo(ctx, args.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Fail(fmt.Sprintf("Error: No To Do item found with ID %d", args.ID), nil)
		}
		log.Printf("❌ Error removing todo %d: %v", args.ID, err)
		return Fail("Failed to remove todo item", err)
	}
	return OK(fmt.Sprintf("To Do item %q (ID: %d) was successfully removed from your list", todo.Text, args.ID), nil)
}

func (h *todoHandlers) removeAll(ctx context.Context, _ json.RawMessage) Result {
	n, err := h.store.RemoveAllTodos(ctx)
	if err != nil {
		log.Printf("❌ Error removing all todos: %v", err)
		return Fail("Failed to remove all todo items", err)
	}
	if n == 0 {
		return OK("Your To Do list is already empty", map[string]any{"removed": n})
	}
	return OK(fmt.Sprintf("Removed %d To Do item(s) from your list", n), map[string]any{"removed": n})
}

func (h *todoHandlers) toggle(ctx context.Context, raw json.RawMessage) Result {
	var args todoIDArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Fail("Failed to toggle todo item status", err)
	}
	todo, err := h.store.ToggleTodo(ctx, args.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return Fail(fmt.Sprintf("Error: No To Do item found with ID %d", args.ID), nil)
	}
	if err != nil {
		log.Printf("❌ Error toggling todo %d: %v", args.ID, err)
		return Fail("Failed to toggle todo item status", err)
	}
	status := "incomplete"
	if todo.Completed {
		status = "completed"
	}
	return OK(fmt.Sprintf("To Do item %q (ID: %d) was marked as %s", todo.Text, args.ID, status),
		map[string]any{"todo": todo})
}
