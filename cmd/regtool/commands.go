package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"hwreg-go/errcode"
	"hwreg-go/reg/regmap"
)

type options struct {
	mapFile string
	builtin string
}

// devices loads the --map file, or the built-in maps when none is given.
func (o *options) devices() ([]*regmap.Device, error) {
	if o.mapFile != "" {
		d, err := regmap.LoadFile(o.mapFile)
		if err != nil {
			return nil, err
		}
		return []*regmap.Device{d}, nil
	}
	if o.builtin != "" {
		d, err := regmap.Builtin(o.builtin)
		if err != nil {
			return nil, err
		}
		return []*regmap.Device{d}, nil
	}
	var out []*regmap.Device
	for _, n := range regmap.CatalogNames() {
		d, err := regmap.Builtin(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// lookup resolves PERIPH.REG in the first map that has it.
func (o *options) lookup(path string) (*regmap.Peripheral, *regmap.Register, error) {
	devs, err := o.devices()
	if err != nil {
		return nil, nil, err
	}
	var lastErr error = errcode.New(errcode.UnknownRegister, "regtool", path)
	for _, d := range devs {
		p, r, err := d.Lookup(path)
		if err == nil {
			return p, r, nil
		}
		if errors.Is(err, errcode.InvalidParams) {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "regtool",
		Short:         "Inspect memory-mapped register maps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.mapFile, "map", "m", opts.mapFile, "register map YAML file (default: built-in maps)")
	root.PersistentFlags().StringVarP(&opts.builtin, "builtin", "b", opts.builtin, "use one built-in map: "+strings.Join(regmap.CatalogNames(), ", "))
	root.AddCommand(
		listCmd(opts),
		decodeCmd(opts),
		encodeCmd(opts),
		fieldsCmd(opts),
		shellCmd(opts),
	)
	return root
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List peripherals and registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := opts.devices()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, d := range devs {
				fmt.Fprintf(w, "%s: %s\n", d.Name, d.Description)
				for _, pn := range d.PeripheralNames() {
					p, _ := d.Peripheral(pn)
					fmt.Fprintf(w, "  %-8s @0x%08X\n", p.Name, uint32(p.Base))
					for _, r := range p.SortedRegisters() {
						fmt.Fprintf(w, "    +0x%03X %-14s %s reset=0x%08X\n", uint32(r.Offset), r.Name, r.Access, uint32(r.Reset))
					}
				}
			}
			return nil
		},
	}
}

func decodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decode PERIPH.REG WORD",
		Short: "Split a register word into its fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, r, err := opts.lookup(args[0])
			if err != nil {
				return err
			}
			word, err := regmap.ParseNumber(args[1])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s.%s = 0x%08X\n", p.Name, r.Name, word)
			for _, fv := range r.Decode(word) {
				printField(w, fv.Field, fv.Value, fv.Symbol)
			}
			return nil
		},
	}
}

func printField(w io.Writer, f *regmap.Field, v uint32, sym string) {
	fmt.Fprintf(w, "  %-7s %-10s = 0x%X", f.Layout(), f.Name, v)
	if sym != "" {
		fmt.Fprintf(w, " (%s)", sym)
	}
	fmt.Fprintln(w)
}

func encodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "encode PERIPH.REG WORD FIELD=VALUE...",
		Short: "Set fields of a register word",
		Long:  "Set fields of a register word. VALUE is a number or one of the field's symbols.",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, r, err := opts.lookup(args[0])
			if err != nil {
				return err
			}
			word, err := regmap.ParseNumber(args[1])
			if err != nil {
				return err
			}
			for _, a := range args[2:] {
				name, val, ok := strings.Cut(a, "=")
				if !ok {
					return errcode.New(errcode.InvalidParams, "encode", "want FIELD=VALUE, got "+a)
				}
				f, err := r.Field(name)
				if err != nil {
					return err
				}
				v, err := f.Resolve(val)
				if err != nil {
					return err
				}
				if word, err = r.Encode(word, f.Name, v); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = 0x%08X\n", p.Name, r.Name, word)
			return nil
		},
	}
}

func fieldsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fields PERIPH.REG",
		Short: "Describe the fields of a register",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, r, err := opts.lookup(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s.%s @0x%08X %s\n", p.Name, r.Name, uint32(p.Base)+uint32(r.Offset), r.Access)
			for _, f := range r.SortedFields() {
				fmt.Fprintf(w, "  %-7s %-10s %s", f.Layout(), f.Name, f.Access)
				if syms := f.Symbols(); len(syms) > 0 {
					fmt.Fprintf(w, " {%s}", strings.Join(syms, " "))
				}
				if f.Description != "" {
					fmt.Fprintf(w, "  %s", f.Description)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}
