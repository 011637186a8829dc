package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr error
	}{
		{"trims whitespace", "  hello\n", "hello", nil},
		{"empty", "", "", ErrEmptyContent},
		{"whitespace only", " \t\n ", "", ErrEmptyContent},
		{"at limit", strings.Repeat("ü", MaxContentLength), strings.Repeat("ü", MaxContentLength), nil},
		{"over limit", strings.Repeat("a", MaxContentLength+1), "", ErrContentTooLong},
		{"limit counted after trim", "  " + strings.Repeat("a", MaxContentLength) + "  ", strings.Repeat("a", MaxContentLength), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeContent(tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if !errors.Is(ErrEmptyContent, ErrInvalidArgument) {
		t.Error("empty content should be an invalid argument")
	}
}

func TestPageOffset(t *testing.T) {
	tests := []struct {
		page, pageSize int
		want           int
		wantErr        bool
	}{
		{1, 50, 0, false},
		{2, 50, 50, false},
		{3, 7, 14, false},
		{0, 10, 0, true},
		{1, 0, 0, true},
		{-1, 10, 0, true},
	}

	for _, tt := range tests {
		got, err := PageOffset(tt.page, tt.pageSize)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPage) {
				t.Errorf("PageOffset(%d, %d): expected ErrInvalidPage, got %v", tt.page, tt.pageSize, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("PageOffset(%d, %d) = %d, %v; want %d", tt.page, tt.pageSize, got, err, tt.want)
		}
	}
}

func TestNewMessagePage(t *testing.T) {
	page := NewMessagePage(nil, 3, 10, 21)
	if page.Messages == nil {
		t.Error("expected non-nil messages slice")
	}
	if page.PageCount != 3 {
		t.Errorf("expected 3 pages, got %d", page.PageCount)
	}

	empty := NewMessagePage(nil, 1, 10, 0)
	if empty.PageCount != 0 || empty.TotalCount != 0 {
		t.Errorf("expected zero pages for an empty channel, got %+v", empty)
	}

	exact := NewMessagePage([]*Message{{ID: "m1"}}, 1, 5, 10)
	if exact.PageCount != 2 {
		t.Errorf("expected 2 pages, got %d", exact.PageCount)
	}
}
