package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/openprep/openprep/internal/notify"
	"github.com/openprep/openprep/internal/questionbank"
)

const testBank = `
pools:
  technical:
    - question: "Explain quicksort."
      category: algorithms
      difficulty: medium
      keywords: [quicksort, pivot, partition]
    - question: "Compare quicksort and mergesort."
      category: algorithms
      difficulty: medium
      keywords: [quicksort, mergesort, stable]
    - question: "When is quicksort slow?"
      category: algorithms
      difficulty: hard
      keywords: [quicksort, worst case, pivot]
    - question: "How does binary search relate to quicksort partitions?"
      category: algorithms
      difficulty: medium
      keywords: [quicksort, binary search]
    - question: "Is quicksort in place?"
      category: algorithms
      difficulty: easy
      keywords: [quicksort, in place, memory]
    - question: "Why randomize the pivot in quicksort?"
      category: algorithms
      difficulty: medium
      keywords: [quicksort, random, pivot]
  hr:
    - question: "Tell me about yourself."
      category: introduction
      difficulty: easy
      keywords: [experience, project]
    - question: "Why this company?"
      category: motivation
      difficulty: easy
      keywords: [culture, growth]
    - question: "Describe a conflict."
      category: teamwork
      difficulty: medium
      keywords: [team, communicate]
    - question: "Greatest weakness?"
      category: self-awareness
      difficulty: medium
      keywords: [improve, feedback]
    - question: "Five year plan?"
      category: motivation
      difficulty: easy
      keywords: [growth, goal]
skills:
  go: [goroutine, channel]
  react: [hooks, state]
resume_templates:
  - text: "Describe a project where you used {skill}."
    category: experience
    difficulty: medium
    keywords: [project, result]
  - text: "What are the core concepts of {skill}?"
    category: fundamentals
    difficulty: easy
    keywords: [concept]
  - text: "Hardest bug you hit with {skill}?"
    category: problem-solving
    difficulty: hard
    keywords: [debug, fix]
`

func newTestBank(t *testing.T) *questionbank.Bank {
	t.Helper()
	b, err := questionbank.Parse([]byte(testBank))
	if err != nil {
		t.Fatalf("parse test bank: %v", err)
	}
	return b
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.InterviewCompleted
}

func (n *recordingNotifier) InterviewCompleted(_ context.Context, evt notify.InterviewCompleted) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

// mapCache round-trips through JSON like the Redis cache does.
type mapCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	gens   map[string]int64
	bumped []string
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, gens: map[string]int64{}}
}

func (c *mapCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *mapCache) Generation(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key], nil
}

func (c *mapCache) Bump(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.bumped = append(c.bumped, key)
	return nil
}
