package scenario

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario 描述一笔在本地模拟器中执行的交易及其预期结果
type Scenario struct {
	Name           string            `yaml:"name"`
	EscrowLamports uint64            `yaml:"escrow_lamports"` // 预先注入 escrow authority 的余额
	Accounts       []AccountSpec     `yaml:"accounts"`
	Instructions   []InstructionSpec `yaml:"instructions"`
	Expect         Expectation       `yaml:"expect"`
}

// AccountSpec 命名账户。Address 为空时由名字确定性派生
type AccountSpec struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Lamports uint64 `yaml:"lamports"`
	Signer   bool   `yaml:"signer"`
}

// InstructionSpec 一条主指令。Kind 取值：
//   - borrow / repay：flash swap 指令，Borrower 默认 "borrower"，Authority 默认 "escrow"
//   - swap：外部 swap 程序（无副作用）
//   - transfer：System 转账 From -> To
//   - proxy：由代理程序 CPI 调用 Inner
//   - raw：发往 Program 的任意 Data（hex）
type InstructionSpec struct {
	Kind      string           `yaml:"kind"`
	Borrower  string           `yaml:"borrower"`
	Authority string           `yaml:"authority"`
	From      string           `yaml:"from"`
	To        string           `yaml:"to"`
	Lamports  uint64           `yaml:"lamports"`
	Program   string           `yaml:"program"`
	Data      string           `yaml:"data"`
	Inner     *InstructionSpec `yaml:"inner"`
}

// Expectation 预期结果。Error 为空表示成功
type Expectation struct {
	Error   string   `yaml:"error"`
	Index   int      `yaml:"index"`
	NetZero []string `yaml:"net_zero"` // 交易前后余额不变的账户
}

func (s *InstructionSpec) data() ([]byte, error) {
	if s.Data == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data %q: %w", s.Data, err)
	}
	return b, nil
}

// Load 读取单个场景文件
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err = yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	if len(s.Instructions) == 0 {
		return nil, fmt.Errorf("scenario %s has no instructions", s.Name)
	}
	return &s, nil
}

// LoadDir 读取目录下全部 *.yaml 场景，按文件名排序
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
