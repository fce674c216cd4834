package sysvar

// Accessor 基于 instructions sysvar 原始数据提供按序号访问指令的能力。
// 数据在整个交易执行期间只读（current index 除外，由运行时维护）。
type Accessor struct {
	data []byte
}

func NewAccessor(data []byte) *Accessor {
	return &Accessor{data: data}
}

// CurrentIndex 返回当前执行的主指令序号
func (a *Accessor) CurrentIndex() (int, error) {
	idx, err := LoadCurrentIndex(a.data)
	if err != nil {
		return 0, err
	}
	return int(idx), nil
}

// InstructionAt 返回第 index 条主指令，不存在时返回 ErrInstructionNotPresent
func (a *Accessor) InstructionAt(index int) (*Instruction, error) {
	return LoadInstructionAt(a.data, index)
}

// Len 返回指令数量
func (a *Accessor) Len() (int, error) {
	r := reader{data: a.data}
	n, err := r.u16()
	return int(n), err
}
