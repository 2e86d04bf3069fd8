package annotation

import "strconv"

// SelectionKind is what the comment editor is attached to.
type SelectionKind string

const (
	SelectAnnotation SelectionKind = "annotation"
	SelectPending    SelectionKind = "pending"
)

// Selection is the single item whose comment editor is open.
type Selection struct {
	Kind         SelectionKind `json:"kind"`
	Page         int           `json:"page"`
	AnnotationID string        `json:"annotationId,omitempty"`
	Editing      bool          `json:"editing"`
}

// Target is the element id of the selected item. Events targeting it or
// its editor do not dismiss the selection.
func (sel Selection) Target() string {
	if sel.Kind == SelectPending {
		return "pending:" + strconv.Itoa(sel.Page)
	}
	return sel.AnnotationID
}

// EditorTarget is the element id of the open comment editor.
func (sel Selection) EditorTarget() string {
	return "editor:" + sel.Target()
}

// Select opens the editor for sel, closing any previous selection.
// Unsaved text in the previous editor is dropped; committed edits are kept.
func (s *Store) Select(sel Selection) {
	s.Deselect()
	if sel.Kind == SelectAnnotation {
		if _, ok := s.Find(sel.AnnotationID); !ok {
			return
		}
	}
	s.selection = &sel
	if s.listeners == nil {
		return
	}
	dismiss := func(target string) {
		if s.selection == nil || target == sel.Target() || target == sel.EditorTarget() {
			return
		}
		s.Deselect()
	}
	s.detach = append(s.detach,
		s.listeners.Add(EventPointerDown, dismiss),
		s.listeners.Add(EventTouchStart, dismiss),
	)
}

// SetEditing toggles edit mode of the open editor.
func (s *Store) SetEditing(editing bool) {
	if s.selection != nil {
		s.selection.Editing = editing
	}
}

// Active returns the open selection.
func (s *Store) Active() (Selection, bool) {
	if s.selection == nil {
		return Selection{}, false
	}
	return *s.selection, true
}

// Deselect closes the editor and detaches its document listeners.
func (s *Store) Deselect() {
	s.selection = nil
	for _, d := range s.detach {
		d()
	}
	s.detach = nil
}

func (s *Store) closePendingSelection(page int) {
	if s.selection != nil && s.selection.Kind == SelectPending && s.selection.Page == page {
		s.Deselect()
	}
}
