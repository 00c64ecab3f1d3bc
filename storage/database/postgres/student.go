package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ecolage/core/student"
)

const studentTable = "student"

var studentColumns = []string{"id", "unit", "name", "guardian_name", "guardian_email", "default_monthly_value", "is_active"}

// StudentRepository reads the student records owned by enrollment.
type StudentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (repo *StudentRepository) GetStudent(ctx context.Context, unit, id string) (student.Student, error) {
	query, args, err := psql.Select(studentColumns...).
		From(studentTable).
		Where(sq.Eq{"unit": unit, "id": id}).
		ToSql()
	if err != nil {
		return student.Student{}, errors.Wrap(err, "building query")
	}
	var std student.Student
	if err = repo.db.GetContext(ctx, &std, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "selecting student")
	}
	return std, nil
}

func (repo *StudentRepository) QueryStudents(ctx context.Context, unit string, ids []string) ([]student.Student, error) {
	students := make([]student.Student, 0)
	if len(ids) == 0 {
		return students, nil
	}
	query, args, err := psql.Select(studentColumns...).
		From(studentTable).
		Where(sq.Eq{"unit": unit, "id": ids}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	if err = repo.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	return students, nil
}
