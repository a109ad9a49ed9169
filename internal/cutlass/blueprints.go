// Package cutlass holds the CUDA C++ blueprints for the fused depthwise
// conv2d + bias + activation kernels built on CUTLASS.
package cutlass

import "github.com/23skdu/longbow-kernelgen/internal/template"

// Header opens the generated translation unit.
const Header template.Blueprint = `
// Generated by kernelgen - Do not edit.

#include <mutex>
#include "paddle/phi/kernels/fusion/cutlass/conv2d/conv2d_util.h"
#include <stdio.h>
#include <algorithm>
#include "cutlass/cutlass.h"
#include "cutlass/gemm/device/gemm.h"
#include "cutlass/conv/kernel/default_depthwise_fprop.h"
#include "cutlass/epilogue/thread/linear_combination_silu.h"
#include "cutlass/conv/device/direct_convolution.h"

#include "cutlass/conv/device/implicit_gemm_convolution.h"
#include "cutlass/conv/kernel/default_conv2d_fprop.h"
namespace phi {
namespace fusion {
namespace cutlass_internal {
`

// Tail closes the namespaces opened by Header.
const Tail template.Blueprint = `
}  // namespace cutlass_internal
}  // namespace fusion
}  // namespace phi
`

// depthwiseDeclare declares one direct-convolution kernel and unpacks the
// runtime problem description.
const depthwiseDeclare template.Blueprint = `
cutlass::Status ${kernel_func_name}(const ConvAllParams& params) {
  using kernel_base =
  typename cutlass::conv::kernel::${conv_kind_name}<
    ${element_a},
    ${layout_a},
    ${element_b},
    ${layout_b},
    ${element_c},
    ${layout_c},
    ${element_accum},
    ${opcode_class},
    ${arch},
    cutlass::gemm::GemmShape<${Tshape}>,
    cutlass::conv::TensorNHWCShape<${T_output_shape}>,
    cutlass::MatrixShape<${filter_shape}>,
    cutlass::gemm::GemmShape<${Wshape}>,
    cutlass::gemm::GemmShape<${Ishape}>,
    ${epi_part},
    ${swizzling_functor},
    ${stages},
    ${math_operator},
    ${iterator_algorithm},
    ${stride_support},
    cutlass::MatrixShape<${strided_shape}>,
    cutlass::MatrixShape<${dilation_shape}>
  >::Kernel;

  using ImplicitGemm =
      cutlass::conv::device::DirectConvolution<kernel_base>;

  const half *input = params.input;
  const half *weight = params.weight;
  const half *bias = params.bias;
  half *output = params.output;
  int batch = params.batch;
  int ic = params.ic;
  int ih = params.ih;
  int iw = params.iw;
  int kh = params.kh;
  int kw = params.kw;
  int oc = params.oc;
  int pad_h0 = params.pad_h0;
  int pad_w0 = params.pad_w0;
  int stride_h = params.stride_h;
  int stride_w = params.stride_w;
  int groups = params.groups;
  int kc = ic / groups;

  int oh = params.oh;
  int ow = params.ow;
  int dilation_h = params.dilation_h;
  int dilation_w = params.dilation_w;
  int split_k_slices = ${split_k_slices};

  cutlass::conv::Conv2dProblemSize problem_size({batch, ih, iw, ic},
                                                {oc, kh, kw, kc},
                                                {pad_h0, 0, pad_w0, 0},
                                                {stride_h, stride_w},
                                                {dilation_h, dilation_w},
                                                {batch, oh, ow, oc},
                                                cutlass::conv::Mode::kCrossCorrelation,
                                                split_k_slices,
                                                groups);
`

// depthwiseArguments allocates the filter workspace and packs the CUTLASS
// arguments. Bias is broadcast with a zero stride.
const depthwiseArguments template.Blueprint = `
  size_t filter_size = oc * kh * kw * kc * sizeof(half);
  phi::Allocator::AllocationPtr filter_gpu_ptrs_data =
      phi::memory_utils::Alloc(
          params.ctx->GetPlace(),
          filter_size,
          phi::Stream(reinterpret_cast<phi::StreamId>(params.ctx->stream())));
  void *filter_workspace = filter_gpu_ptrs_data->ptr();

  typename ImplicitGemm::Arguments arguments{
      problem_size,
      {(cutlass::half_t *)input, {ic, ic * iw, ic * iw * ih}},
      {(cutlass::half_t *)weight, {kc, kc * kw, kc * kw * kh}},
      {(cutlass::half_t *)bias, {0, 0, 0}},
      {(cutlass::half_t *)output, {oc, oc * ow, oc * ow * oh}},
      {1.f, 1.f},
      {(cutlass::half_t *)filter_workspace, {kc, kc * kw, kc * kw * kh}},
  };
`

const kernelExecute template.Blueprint = `
  ImplicitGemm implicit_gemm_op;
  size_t bytes = implicit_gemm_op.get_workspace_size(arguments);

  auto ctx = params.ctx;
  auto stream = ctx->stream();
  phi::Allocator::AllocationPtr tmp_gpu_ptrs_data =
      phi::memory_utils::Alloc(
          ctx->GetPlace(),
          bytes,
          phi::Stream(reinterpret_cast<phi::StreamId>(stream)));
  void *workspace = tmp_gpu_ptrs_data->ptr();

  cutlass::Status status = implicit_gemm_op.can_implement(arguments);
  CUTLASS_CHECK(status);
  status = implicit_gemm_op.initialize(arguments, workspace);
  CUTLASS_CHECK(status);
  status = implicit_gemm_op(stream);
  CUTLASS_CHECK(status);
  return status;
}
`

// Wrapper is the per-activation entry point. It caches the best kernel per
// problem shape and profiles the candidates on first sight of a shape.
const Wrapper template.Blueprint = `
std::vector<std::function<cutlass::Status(const ConvAllParams)>>
    ${func_name}_all_func = {${all_kernel_func_name}};

std::map<std::vector<int>, int> map_problem_${func_name};
std::mutex ${func_name}_mutex;

void ${func_name}(ConvAllParams params) {
  int batch = params.batch;
  int ic = params.ic;
  int ih = params.ih;
  int iw = params.iw;
  int kh = params.kh;
  int kw = params.kw;
  int oc = params.oc;
  int groups = params.groups;
  int stride_h = params.stride_h;
  int stride_w = params.stride_w;

  std::vector<int> problem_size = {
      batch, ic, ih, iw, kh, kw, oc, groups, stride_h, stride_w};

  if (map_problem_${func_name}.count(problem_size)) {
    ${func_name}_all_func[map_problem_${func_name}.at(problem_size)](params);
    return;
  }

  int best_config_index = ProfileToGetBestConfig(
      ${func_name}_all_func, params, ${enum_op_name});

  std::lock_guard<std::mutex> guard(${func_name}_mutex);

  map_problem_${func_name}[problem_size] = best_config_index;
  ${func_name}_all_func[best_config_index](params);
}
`

// declareParts fills the structural slots of depthwiseDeclare. Its values
// carry further placeholders resolved per variant.
var declareParts = template.Params{
	"conv_kind_name":    "DefaultDepthwiseDirect2dConvFprop",
	"epi_part":          "${epi_func}< ${element_c}, ${epilogue_vector_length}, ${element_accum}, ${element_epilogue}>",
	"swizzling_functor": "cutlass::conv::threadblock::DepthwiseDirect2dConvIdentityThreadblockSwizzle<${swizzling_shape}>",
}

// KernelBody is the full blueprint of one generated kernel.
var KernelBody = template.Concat(
	template.Bind(depthwiseDeclare, declareParts),
	depthwiseArguments,
	kernelExecute,
)
