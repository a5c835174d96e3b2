package config

import (
	"fmt"
)

type SlotKeyStruct struct{}

func NewSlotKeyStruct() *SlotKeyStruct {
	return &SlotKeyStruct{}
}

// ExamSessionSlot returns the durable slot name for a tab's exam session state
func (r *SlotKeyStruct) ExamSessionSlot(tabID string) string {
	return fmt.Sprintf("portal:tab:%s:exam_session", tabID)
}

// ExamSessionFile returns the file name used by the file slot backend
func (r *SlotKeyStruct) ExamSessionFile(tabID string) string {
	return fmt.Sprintf("exam-session-%s.json", tabID)
}

var SlotKey = NewSlotKeyStruct()
