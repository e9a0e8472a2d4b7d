package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPayloadKey returns the cache key for an exam's learner-facing payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamListKey returns the cache key for the published exam catalog
func (r *CacheKeyStruct) ExamListKey() string {
	return "exam:catalog"
}

// VisitorViewedQuestionsKey returns the cache key for a visitor's viewed-question set
func (r *CacheKeyStruct) VisitorViewedQuestionsKey(visitorID string) string {
	return fmt.Sprintf("visitor:%s:viewed_questions", visitorID)
}

// VisitorConsentKey returns the cache key for a visitor's consent preferences
func (r *CacheKeyStruct) VisitorConsentKey(visitorID string) string {
	return fmt.Sprintf("visitor:%s:consent", visitorID)
}

// VisitorSessionKey returns the cache key for a visitor's active session on an exam
func (r *CacheKeyStruct) VisitorSessionKey(visitorID, examID string) string {
	return fmt.Sprintf("visitor:%s:exam:%s:session", visitorID, examID)
}

var CacheKey = NewCacheKeyStruct()
