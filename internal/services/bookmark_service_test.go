package services

import (
	"context"
	"errors"
	"testing"

	"github.com/avtotestprime/avtotest-service/internal/models"
)

func TestBookmarkService_ToggleIsInvolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	added := f.addQuestions(t, 2)
	user := f.addUser(t, "driver")

	want := []models.BookmarkStatus{models.BookmarkAdded, models.BookmarkRemoved, models.BookmarkAdded}
	for i, status := range want {
		got, err := f.bookmarks.Toggle(ctx, user.ID, added[1].ID)
		if err != nil {
			t.Fatalf("Toggle() #%d error = %v", i, err)
		}
		if got != status {
			t.Errorf("Toggle() #%d = %q, want %q", i, got, status)
		}
	}

	list, err := f.bookmarks.List(ctx, user.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Total != 1 || list.Questions[0].ID != added[1].ID || !list.Questions[0].IsBookmarked {
		t.Errorf("List() = %+v, want only question %d", list, added[1].ID)
	}

	ids, err := f.bookmarks.IDs(ctx, user.ID)
	if err != nil || len(ids) != 1 || ids[0] != added[1].ID {
		t.Errorf("IDs() = %v, %v; want [%d]", ids, err, added[1].ID)
	}
}

func TestBookmarkService_UnknownQuestion(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "driver")

	_, err := f.bookmarks.Toggle(context.Background(), user.ID, 404)
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("Toggle() error = %v, want ErrQuestionNotFound", err)
	}
}

func TestBookmarkService_PerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	added := f.addQuestions(t, 1)
	alice := f.addUser(t, "alice")
	bob := f.addUser(t, "bob")

	if _, err := f.bookmarks.Toggle(ctx, alice.ID, added[0].ID); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	tests := []struct {
		name   string
		userID uint
		want   int64
	}{
		{name: "owner", userID: alice.ID, want: 1},
		{name: "someone else", userID: bob.ID, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.bookmarks.Count(ctx, tt.userID)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}
}
