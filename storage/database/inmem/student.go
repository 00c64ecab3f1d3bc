package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/ecolage/core/student"
)

type StudentRepository struct {
	db *studentTable
}

func NewStudentRepository(db *DB) *StudentRepository {
	return &StudentRepository{db: db.student}
}

// AddStudent stores std, assigning it an id when it has none.
func (repo *StudentRepository) AddStudent(std student.Student) student.Student {
	repo.db.Lock()
	defer repo.db.Unlock()

	if std.ID == "" {
		std.ID = uuid.New().String()
	}
	repo.db.table[std.ID] = &std
	return std
}

// DeleteStudent removes the student record only; its installments are kept.
func (repo *StudentRepository) DeleteStudent(id string) {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.table, id)
}

func (repo *StudentRepository) GetStudent(_ context.Context, unit, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.table[id]; ok && std.Unit == unit {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *StudentRepository) QueryStudents(_ context.Context, unit string, ids []string) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]student.Student, 0, len(ids))
	for _, id := range ids {
		if std, ok := repo.db.table[id]; ok && std.Unit == unit {
			students = append(students, *std)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}
