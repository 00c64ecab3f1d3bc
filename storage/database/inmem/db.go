package inmemdb

import (
	"sync"

	"github.com/trezcool/ecolage/core/student"
	"github.com/trezcool/ecolage/core/tuition"
)

type (
	DB struct {
		student     *studentTable
		installment *installmentTable
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student
	}

	// installmentTable also holds the receipt outbox: both are written under the same lock.
	installmentTable struct {
		sync.RWMutex
		table    map[string]*tuition.Installment
		periods  map[string]string // {studentID/periodLabel: installmentID}
		receipts map[string]*tuition.ReceiptEvent
		seq      []string // receipt ids in insertion order
	}
)

func Open() (*DB, error) {
	db := &DB{
		student: &studentTable{table: make(map[string]*student.Student)},
		installment: &installmentTable{
			table:    make(map[string]*tuition.Installment),
			periods:  make(map[string]string),
			receipts: make(map[string]*tuition.ReceiptEvent),
		},
	}
	return db, nil
}
