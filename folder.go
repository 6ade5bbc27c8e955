package kamel

import (
	"strings"
)

// FolderDescriptor describes a mailbox as returned by a LIST response.
type FolderDescriptor struct {
	// Path holds the hierarchy segments, already decoded from modified
	// UTF-7.
	Path []string
	// Delimiter is the hierarchy delimiter, empty if the server has none.
	Delimiter  string
	Attrs      []MailboxAttr
	SpecialUse SpecialUse
}

// NewFolderDescriptor splits a decoded mailbox name on delim and derives its
// special use.
func NewFolderDescriptor(name, delim string, attrs []MailboxAttr) *FolderDescriptor {
	var path []string
	if delim == "" {
		path = []string{name}
	} else {
		path = strings.Split(name, delim)
	}
	return &FolderDescriptor{
		Path:       path,
		Delimiter:  delim,
		Attrs:      attrs,
		SpecialUse: SpecialUseOf(path, attrs),
	}
}

// FullName joins the path back into the mailbox name used on the wire.
func (desc *FolderDescriptor) FullName() string {
	return strings.Join(desc.Path, desc.Delimiter)
}

// Name returns the last path segment.
func (desc *FolderDescriptor) Name() string {
	if len(desc.Path) == 0 {
		return ""
	}
	return desc.Path[len(desc.Path)-1]
}

// HasAttr reports whether the folder carries attr.
func (desc *FolderDescriptor) HasAttr(attr MailboxAttr) bool {
	for _, a := range desc.Attrs {
		if strings.EqualFold(string(a), string(attr)) {
			return true
		}
	}
	return false
}

// Selectable reports whether the folder can be opened with SELECT.
func (desc *FolderDescriptor) Selectable() bool {
	return !desc.HasAttr(MailboxAttrNoSelect)
}

func (desc *FolderDescriptor) String() string {
	return desc.FullName()
}
