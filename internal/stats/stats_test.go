package stats

import (
	"sync"
	"testing"
)

func TestCountsConcurrent(t *testing.T) {
	c := NewCounts("orders")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Insert(2)
				c.Skip(1)
			}
		}()
	}
	wg.Wait()

	if c.Inserted() != 16000 {
		t.Errorf("Expected 16000 inserted, got %d", c.Inserted())
	}
	if c.Skipped() != 8000 {
		t.Errorf("Expected 8000 skipped, got %d", c.Skipped())
	}
}

func TestSum(t *testing.T) {
	a, b := NewCounts("a"), NewCounts("b")
	a.Insert(3)
	b.Insert(4)
	b.Skip(1)

	ins, skip := Sum(a, nil, b)
	if ins != 7 || skip != 1 {
		t.Errorf("Expected 7/1, got %d/%d", ins, skip)
	}
}

func TestProgress(t *testing.T) {
	p := NewProgress("orders", 100)
	p.Update(60)
	p.Update(60)
	if p.Rows() != 120 {
		t.Errorf("Expected 120 rows, got %d", p.Rows())
	}

	off := NewProgress("x", 0)
	off.Update(10)
	if off.Rows() != 10 {
		t.Errorf("Expected 10 rows, got %d", off.Rows())
	}
}
