package gnark

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	gnarkwitness "github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"

	"github.com/weisyn/zkattest/internal/core/proofgen/backend"
	"github.com/weisyn/zkattest/internal/core/proofgen/witness"
	"github.com/weisyn/zkattest/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

const curveID = ecc.BN254

var silenceOnce sync.Once

// silenceGnark 关闭 gnark 内部的 zerolog 输出，证明日志只经由 zap
func silenceGnark() {
	silenceOnce.Do(func() {
		gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	})
}

// Option 后端构造选项
type Option func(*options)

type options struct {
	version uint32
	logger  log.Logger
}

// WithVersion 指定后端版本（默认 1）
func WithVersion(version uint32) Option {
	return func(o *options) { o.version = version }
}

// WithLogger 指定日志记录器
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// scheme 两种证明系统共享的部分：描述符、电路编译、见证与公开输入编码
type scheme struct {
	desc   types.BackendDescriptor
	logger log.Logger

	builder     frontend.NewBuilder
	compileOnce sync.Once
	ccs         constraint.ConstraintSystem
	compileErr  error
}

// init 初始化共享部分，必须在首次使用前调用
func (s *scheme) init(id string, builder frontend.NewBuilder, opts []Option) {
	silenceGnark()

	o := options{version: 1}
	for _, opt := range opts {
		opt(&o)
	}
	s.desc = types.BackendDescriptor{
		ID:                   id,
		Version:              o.version,
		WitnessSchemaVersion: witness.SchemaV1,
	}
	s.builder = builder
	if o.logger != nil {
		s.logger = o.logger.With("module", "backend", "backend_id", id)
	}
}

// Descriptor 后端描述符
func (s *scheme) Descriptor() types.BackendDescriptor {
	return s.desc
}

// compiled 编译电路，结果在实例生命周期内复用
func (s *scheme) compiled() (constraint.ConstraintSystem, error) {
	s.compileOnce.Do(func() {
		s.ccs, s.compileErr = frontend.Compile(curveID.ScalarField(), s.builder, &CommitmentCircuit{})
		if s.compileErr == nil && s.logger != nil {
			s.logger.Debugf("电路编译完成: constraints=%d", s.ccs.GetNbConstraints())
		}
	})
	return s.ccs, s.compileErr
}

// checkSetup 编译并检查约束数上限
func (s *scheme) checkSetup(ctx context.Context, params proofgen.SetupParams) (constraint.ConstraintSystem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrTransient, err)
	}
	ccs, err := s.compiled()
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	if params.MaxConstraints > 0 && ccs.GetNbConstraints() > params.MaxConstraints {
		return nil, fmt.Errorf("%w: circuit has %d constraints, limit %d",
			backend.ErrResourceAllocation, ccs.GetNbConstraints(), params.MaxConstraints)
	}
	return ccs, nil
}

// fullWitness 构造完整 gnark 见证
func (s *scheme) fullWitness(w *types.Witness) (gnarkwitness.Witness, error) {
	if w.SchemaVersion() != s.desc.WitnessSchemaVersion {
		return nil, backend.WrapShapeError(s.desc.ID,
			fmt.Errorf("schema version %d, want %d", w.SchemaVersion(), s.desc.WitnessSchemaVersion))
	}
	assignment, err := assignmentFor(w)
	if err != nil {
		return nil, backend.WrapShapeError(s.desc.ID, err)
	}
	full, err := frontend.NewWitness(assignment, curveID.ScalarField())
	if err != nil {
		return nil, backend.WrapShapeError(s.desc.ID, err)
	}
	return full, nil
}

// PublicInputs 公开输入：gnark 公开见证的二进制编码（承诺、链 ID、高度）
func (s *scheme) PublicInputs(w *types.Witness) ([]byte, error) {
	assignment, err := assignmentFor(w)
	if err != nil {
		return nil, backend.WrapShapeError(s.desc.ID, err)
	}
	public, err := frontend.NewWitness(assignment, curveID.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, backend.WrapShapeError(s.desc.ID, err)
	}
	return public.MarshalBinary()
}

// decodePublic 解析公开输入
func decodePublic(publicInputs []byte) (gnarkwitness.Witness, error) {
	public, err := gnarkwitness.New(curveID.ScalarField())
	if err != nil {
		return nil, err
	}
	if err := public.UnmarshalBinary(publicInputs); err != nil {
		return nil, backend.WrapDecodeError("public inputs", err)
	}
	return public, nil
}

// proveSafely 执行证明，将 panic（通常是内存分配失败）转换为资源错误
func (s *scheme) proveSafely(prove func() (proofgen.Proof, error)) (proof proofgen.Proof, err error) {
	defer func() {
		if r := recover(); r != nil {
			proof = nil
			err = fmt.Errorf("%w: prover panic: %v", backend.ErrResourceAllocation, r)
		}
	}()
	proof, err = prove()
	if err != nil {
		// 约束不满足意味着见证与电路不匹配
		return nil, backend.WrapShapeError(s.desc.ID, err)
	}
	return proof, nil
}

// writerTo 可序列化对象
type writerTo interface {
	WriteTo(w io.Writer) (int64, error)
}

// readerFrom 可反序列化对象
type readerFrom interface {
	ReadFrom(r io.Reader) (int64, error)
}

func serialize(what string, v interface{}) ([]byte, error) {
	wt, ok := v.(writerTo)
	if !ok {
		return nil, backend.WrapDecodeError(what, fmt.Errorf("unexpected type %T", v))
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize %s: %w", what, err)
	}
	return buf.Bytes(), nil
}

func deserialize(what string, data []byte, into readerFrom) error {
	if len(data) == 0 {
		return backend.WrapDecodeError(what, fmt.Errorf("empty input"))
	}
	if _, err := into.ReadFrom(bytes.NewReader(data)); err != nil {
		return backend.WrapDecodeError(what, err)
	}
	return nil
}
