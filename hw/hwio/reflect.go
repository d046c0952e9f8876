package hwio

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type bankReg struct {
	offset uint32
	regPtr any
}

// parseTag parses a "hwio" struct tag into its key/value options. Options
// without a value map to the empty string.
func parseTag(tag string) map[string]string {
	opts := make(map[string]string)
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		k, v, _ := strings.Cut(opt, "=")
		opts[k] = v
	}
	return opts
}

func parseUint32(field, key, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("field %s: invalid %s=%q: %v", field, key, s, err)
	}
	return uint32(v), nil
}

func bankGetRegs(bank any) ([]bankReg, error) {
	rv := reflect.ValueOf(bank)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("hwio: bank must be a pointer to struct, got %T", bank)
	}
	rv = rv.Elem()
	rt := rv.Type()

	var regs []bankReg
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag, ok := f.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		opts := parseTag(tag)
		offs, ok := opts["offset"]
		if !ok {
			continue
		}
		off, err := parseUint32(f.Name, "offset", offs)
		if err != nil {
			return nil, err
		}
		ptr := rv.Field(i).Addr().Interface()
		switch ptr.(type) {
		case *Reg32, *Device:
		default:
			return nil, fmt.Errorf("field %s: invalid reg type %s", f.Name, f.Type)
		}
		regs = append(regs, bankReg{offset: off, regPtr: ptr})
	}
	return regs, nil
}

// MustInitRegs initializes every register of a bank from its "hwio" struct
// tag. The tag is a comma-separated list of options:
//
//	offset=0x10     byte offset of the register within the bank
//	reset=0x1234    reset value (Reg32)
//	rwmask=0xFF     writable bits, others are read-only (Reg32)
//	size=0x40       size in bytes (Device)
//	readonly        ignore (and log) bus writes
//	writeonly       reads return 0 (and log)
//	rcb[=Method]    bind the read callback, default method ReadNAME
//	wcb[=Method]    bind the write callback, default method WriteNAME
//	pcb[=Method]    bind the peek callback, default method PeekNAME
//
// NAME is the upper-cased field name. Reg32 callbacks have the signatures
// func(val uint32) uint32 and func(old, val uint32); Device callbacks
// func(addr uint32) uint32 and func(addr, val uint32).
func MustInitRegs(bank any) {
	if err := initRegs(bank); err != nil {
		panic(err)
	}
}

func initRegs(bank any) error {
	rv := reflect.ValueOf(bank)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("hwio: bank must be a pointer to struct, got %T", bank)
	}
	rt := rv.Elem().Type()

	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag, ok := f.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		opts := parseTag(tag)
		ptr := rv.Elem().Field(i).Addr().Interface()

		var flags RWFlags
		if _, ok := opts["readonly"]; ok {
			flags |= ReadOnlyFlag
		}
		if _, ok := opts["writeonly"]; ok {
			flags |= WriteOnlyFlag
		}

		method := func(key, prefix string) (reflect.Value, bool, error) {
			name, ok := opts[key]
			if !ok {
				return reflect.Value{}, false, nil
			}
			if name == "" {
				name = prefix + strings.ToUpper(f.Name)
			}
			m := rv.MethodByName(name)
			if !m.IsValid() {
				return reflect.Value{}, false, fmt.Errorf("field %s: method %s not found on %T", f.Name, name, bank)
			}
			return m, true, nil
		}

		switch r := ptr.(type) {
		case *Reg32:
			*r = Reg32{Name: f.Name, Flags: flags}
			if s, ok := opts["reset"]; ok {
				v, err := parseUint32(f.Name, "reset", s)
				if err != nil {
					return err
				}
				r.Value = v
			}
			if s, ok := opts["rwmask"]; ok {
				v, err := parseUint32(f.Name, "rwmask", s)
				if err != nil {
					return err
				}
				r.RoMask = ^v
			}
			if m, ok, err := method("rcb", "Read"); err != nil {
				return err
			} else if ok {
				cb, ok := m.Interface().(func(uint32) uint32)
				if !ok {
					return fmt.Errorf("field %s: read callback has type %s", f.Name, m.Type())
				}
				r.ReadCb = cb
			}
			if m, ok, err := method("pcb", "Peek"); err != nil {
				return err
			} else if ok {
				cb, ok := m.Interface().(func(uint32) uint32)
				if !ok {
					return fmt.Errorf("field %s: peek callback has type %s", f.Name, m.Type())
				}
				r.PeekCb = cb
			}
			if m, ok, err := method("wcb", "Write"); err != nil {
				return err
			} else if ok {
				cb, ok := m.Interface().(func(uint32, uint32))
				if !ok {
					return fmt.Errorf("field %s: write callback has type %s", f.Name, m.Type())
				}
				r.WriteCb = cb
			}

		case *Device:
			*r = Device{Name: f.Name, Flags: flags}
			if s, ok := opts["size"]; ok {
				v, err := parseUint32(f.Name, "size", s)
				if err != nil {
					return err
				}
				r.Size = int(v)
			} else {
				return fmt.Errorf("field %s: device without size", f.Name)
			}
			if m, ok, err := method("rcb", "Read"); err != nil {
				return err
			} else if ok {
				cb, ok := m.Interface().(func(uint32) uint32)
				if !ok {
					return fmt.Errorf("field %s: read callback has type %s", f.Name, m.Type())
				}
				r.ReadCb = cb
			}
			if m, ok, err := method("pcb", "Peek"); err != nil {
				return err
			} else if ok {
				cb, ok := m.Interface().(func(uint32) uint32)
				if !ok {
					return fmt.Errorf("field %s: peek callback has type %s", f.Name, m.Type())
				}
				r.PeekCb = cb
			}
			if m, ok, err := method("wcb", "Write"); err != nil {
				return err
			} else if ok {
				cb, ok := m.Interface().(func(uint32, uint32))
				if !ok {
					return fmt.Errorf("field %s: write callback has type %s", f.Name, m.Type())
				}
				r.WriteCb = cb
			}

		default:
			return fmt.Errorf("field %s: invalid reg type %s", f.Name, f.Type)
		}
	}
	return nil
}
