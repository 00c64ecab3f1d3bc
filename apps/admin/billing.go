package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/tuition"
)

var nowFunc = time.Now // mockable

func parseValue(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Errorf("invalid value %q", s)
	}
	return d, nil
}

// parseDay parses a YYYY-MM-DD flag; empty means today.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return core.DateOf(nowFunc()), nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

func (cli *commandLine) generateCmd() *cobra.Command {
	var (
		unit, studentID, value string
		from, to, year         int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a student's monthly installments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := parseValue(value)
			if err != nil {
				return err
			}
			if to == 0 {
				to = from
			}
			n, err := cli.tuitionSvc.Generate(context.Background(), unit, tuition.GenerateRequest{
				StudentID:   studentID,
				Value:       v,
				StartPeriod: from,
				EndPeriod:   to,
				Year:        year,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d installment(s) created\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "", "school unit")
	cmd.Flags().StringVar(&studentID, "student", "", "student id")
	cmd.Flags().StringVar(&value, "value", "", "monthly value (default: the student's default monthly value)")
	cmd.Flags().IntVar(&from, "from", 1, "first month (1-12)")
	cmd.Flags().IntVar(&to, "to", 0, "last month (1-12; default: --from)")
	cmd.Flags().IntVar(&year, "year", nowFunc().Year(), "year")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func (cli *commandLine) dischargeCmd() *cobra.Command {
	var unit, id, document, date string
	cmd := &cobra.Command{
		Use:   "discharge",
		Short: "Settle a pending installment, by id or document number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" && document == "" {
				return errors.New("one of --id or --document is required")
			}
			paymentDate, err := parseDay(date)
			if err != nil {
				return err
			}
			receiptID, err := cli.tuitionSvc.Discharge(context.Background(), unit, tuition.DischargeRequest{
				InstallmentID:  id,
				DocumentNumber: document,
				PaymentDate:    paymentDate,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installment discharged: receipt %s\n", receiptID)
			return nil
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "", "school unit")
	cmd.Flags().StringVar(&id, "id", "", "installment id")
	cmd.Flags().StringVar(&document, "document", "", "bank slip document number")
	cmd.Flags().StringVar(&date, "date", "", "payment date, YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func (cli *commandLine) dueCmd() *cobra.Command {
	var unit, id, date string
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Quote the amount due on an installment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asOf, err := parseDay(date)
			if err != nil {
				return err
			}
			due, err := cli.tuitionSvc.QuoteDue(context.Background(), unit, id, asOf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "penalty: %s\ninterest: %s\ntotal: %s\ndays late: %d\n",
				due.Penalty.StringFixed(2), due.Interest.StringFixed(2), due.Total.StringFixed(2), due.DaysLate)
			return nil
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "", "school unit")
	cmd.Flags().StringVar(&id, "id", "", "installment id")
	cmd.Flags().StringVar(&date, "date", "", "quote date, YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (cli *commandLine) flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Deliver the pending receipts now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cli.receipts.Flush(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d receipt(s) delivered\n", n)
			return nil
		},
	}
}
