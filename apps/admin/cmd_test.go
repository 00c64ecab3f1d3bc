package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/student"
	"github.com/trezcool/ecolage/core/tuition"
	appfs "github.com/trezcool/ecolage/fs"
	emailsvc "github.com/trezcool/ecolage/services/email"
	receiptsvc "github.com/trezcool/ecolage/services/receipt"
	inmemdb "github.com/trezcool/ecolage/storage/database/inmem"
	testutil "github.com/trezcool/ecolage/tests"
)

const unit = "matriz"

type fixture struct {
	cli      *commandLine
	out      *bytes.Buffer
	repo     *inmemdb.InstallmentRepository
	students *inmemdb.StudentRepository
	mailSvc  *emailsvc.ConsoleService
}

func setup(t *testing.T) fixture {
	// set up DB & repos
	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewInstallmentRepository(db)
	students := inmemdb.NewStudentRepository(db)

	conf := &core.Config{AppName: "Ecolage", TestMode: true}
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, testutil.NopLogger{})
	mailSvc := emailsvc.NewConsoleService(io.Discard, conf)

	svc, err := tuition.NewService(repo, students, core.NewValidator(), testutil.NopLogger{}, tuition.Options{})
	require.NoError(t, err)

	// start CLI
	out := new(bytes.Buffer)
	cli := &commandLine{
		tuitionSvc: svc,
		receipts:   receiptsvc.NewWorker(repo, repo, students, mailSvc, testutil.NopLogger{}, conf),
		out:        out,
	}
	return fixture{cli: cli, out: out, repo: repo, students: students, mailSvc: mailSvc}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func (tt cliTest) check(t *testing.T, f fixture) {
	f.out.Reset()
	args := append([]string{"admin"}, tt.args...)
	err := f.cli.run(args)
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	if tt.wantOut != "" && !strings.Contains(f.out.String(), tt.wantOut) {
		t.Errorf("cli.run() output = %q, want %q", f.out.String(), tt.wantOut)
	}
}

func Test_commandLine_help(t *testing.T) {
	f := setup(t)
	tests := []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
		{name: "receipts: no subcommand", args: []string{"receipts"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	prev := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = prev })
	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "fee_tables", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f)
		})
	}
}

func Test_commandLine_generate(t *testing.T) {
	f := setup(t)
	std := f.students.AddStudent(student.Student{Unit: unit, Name: "Ana", DefaultMonthlyValue: decimal.NewFromInt(450)})

	tests := []cliTest{
		{name: "unit required", args: []string{"generate", "--student", std.ID}, wantErrStr: `required flag(s) "unit" not set`},
		{name: "invalid value", args: []string{"generate", "--unit", unit, "--student", std.ID, "--value", "lol"}, wantErrStr: `invalid value "lol"`},
		{
			name:    "generate",
			args:    []string{"generate", "--unit", unit, "--student", std.ID, "--from", "1", "--to", "3", "--year", "2026"},
			wantOut: "3 installment(s) created",
		},
		{
			name:    "idempotent",
			args:    []string{"generate", "--unit", unit, "--student", std.ID, "--from", "1", "--to", "3", "--year", "2026"},
			wantOut: "0 installment(s) created",
		},
		{
			name:    "single month, custom value",
			args:    []string{"generate", "--unit", unit, "--student", std.ID, "--from", "4", "--year", "2026", "--value", "500.00"},
			wantOut: "1 installment(s) created",
		},
		{
			name:       "unknown student",
			args:       []string{"generate", "--unit", unit, "--student", "lol", "--year", "2026"},
			wantErrStr: student.ErrNotFound.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f)
		})
	}

	insts, err := f.repo.QueryInstallments(context.Background(), unit, tuition.QueryFilter{StudentID: std.ID})
	require.NoError(t, err)
	require.Len(t, insts, 4)
	for _, inst := range insts {
		want := decimal.NewFromInt(450)
		if inst.Period.Month == time.April {
			want = decimal.NewFromInt(500)
		}
		assert.True(t, inst.OriginalValue.Equal(want), "%s: %s", inst.PeriodLabel, inst.OriginalValue)
	}
}

func Test_commandLine_dischargeAndFlush(t *testing.T) {
	f := setup(t)
	std := f.students.AddStudent(student.Student{
		Unit: unit, Name: "Ana", GuardianName: "Maria", GuardianEmail: "maria@test.test",
		DefaultMonthlyValue: decimal.NewFromInt(500),
	})
	inst := testutil.CreateInstallment(t, f.repo, unit, std.ID, tuition.Period{Month: time.March, Year: 2026}, decimal.NewFromInt(500), "BOL-1")

	tests := []cliTest{
		{
			name:    "quote",
			args:    []string{"due", "--unit", unit, "--id", inst.ID, "--date", "2026-03-15"},
			wantOut: "total: 511.67",
		},
		{name: "no installment", args: []string{"discharge", "--unit", unit}, wantErrStr: "one of --id or --document is required"},
		{
			name:       "invalid date",
			args:       []string{"discharge", "--unit", unit, "--id", inst.ID, "--date", "15/03/2026"},
			wantErrStr: `invalid date "15/03/2026": expected YYYY-MM-DD`,
		},
		{
			name:    "discharge by document",
			args:    []string{"discharge", "--unit", unit, "--document", "bol-1", "--date", "2026-03-15"},
			wantOut: "installment discharged: receipt ",
		},
		{name: "flush", args: []string{"receipts", "flush"}, wantOut: "1 receipt(s) delivered"},
		{name: "flush again", args: []string{"receipts", "flush"}, wantOut: "0 receipt(s) delivered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f)
		})
	}

	t.Run("discharge twice", func(t *testing.T) {
		err := f.cli.run([]string{"admin", "discharge", "--unit", unit, "--id", inst.ID, "--date", "2026-03-15"})
		assert.True(t, tuition.IsInvalidState(err), "err = %v", err)
	})

	paid, err := f.repo.GetInstallment(context.Background(), unit, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, paid.Payment)
	assert.True(t, paid.Payment.PaidValue.Equal(decimal.RequireFromString("511.67")))
	assert.Len(t, f.mailSvc.SentMessages(), 1)
}
