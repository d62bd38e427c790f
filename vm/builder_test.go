package vm

import (
	"errors"
	"strings"
	"testing"
)

func TestBuilderResolvesLabels(t *testing.T) {
	b := NewBuilder()
	lEnd := b.NewLabel()
	b.Branch(lEnd)
	b.Unit(Forward, 'a', false, false)
	b.Bind(lEnd)
	b.Accept()

	prog, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if got := prog.Inst(0).Target; got != 2 {
		t.Errorf("branch target = %d, want 2", got)
	}
}

func TestBuilderDefaultCaptureCount(t *testing.T) {
	b := NewBuilder()
	b.BeginCap(2)
	b.EndCap(2)
	b.Accept()
	prog, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if got := prog.CaptureCount(); got != 3 {
		t.Errorf("CaptureCount = %d, want 3", got)
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		opts  []BuildOption
		want  string
	}{
		{
			name:  "empty program",
			build: func(b *Builder) {},
			want:  "empty",
		},
		{
			name: "unbound label",
			build: func(b *Builder) {
				l := b.NewLabel()
				b.Jump(l)
			},
			want: "unbound label",
		},
		{
			name: "capture id out of range",
			build: func(b *Builder) {
				b.BeginCap(5)
				b.Accept()
			},
			opts: []BuildOption{WithCaptureCount(2)},
			want: "capture id",
		},
		{
			name: "inverted repeat window",
			build: func(b *Builder) {
				b.Repeat(Forward, nil, false, true, 3, 1)
				b.Accept()
			},
			want: "inverted",
		},
		{
			name: "empty class",
			build: func(b *Builder) {
				b.Class(Forward, nil, false)
				b.Accept()
			},
			want: "empty class",
		},
		{
			name: "missing direction",
			build: func(b *Builder) {
				b.Unit(0, 'a', false, false)
				b.Accept()
			},
			want: "direction",
		},
		{
			name: "bad terminator",
			build: func(b *Builder) {
				b.Unit(Forward, 'a', false, false)
			},
			want: "does not end",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			_, err := b.Build(tt.opts...)
			if err == nil {
				t.Fatal("Build succeeded, want error")
			}
			var be *BuildError
			if !errors.As(err, &be) {
				t.Fatalf("err %T, want *BuildError", err)
			}
			if !strings.Contains(be.Message, tt.want) {
				t.Errorf("message %q does not mention %q", be.Message, tt.want)
			}
		})
	}
}

func TestDisassembleMentionsEveryOpcode(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.Bind(l)
	b.Unit(Forward, 'a', false, false)
	b.UnitRun(Reverse, []rune("bc"), true, false)
	b.Repeat(Forward, []RuneRange{{Lo: '0', Hi: '9'}}, false, true, 1, -1)
	b.Branch(l)
	b.Accept()
	prog, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	dis := prog.Disassemble()
	for _, op := range []Opcode{OpUnit, OpUnitRun, OpRepeat, OpBranch, OpAccept} {
		if !strings.Contains(dis, op.String()) {
			t.Errorf("disassembly missing %s:\n%s", op, dis)
		}
	}
}
