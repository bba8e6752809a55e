package gpuimpl

// trilinearShaderWGSL is the compute kernel applying a 3D lattice to
// packed RGBA pixels, one invocation per pixel.
//
// The pixel buffer is bound as array<u32>; each word is one RGBA pixel in
// little-endian byte order, so the host uploads its interleaved RGBA bytes
// verbatim. The lattice is a flat float array with R varying fastest
// (index = 3*(r + g*n + b*n²)), matching the cube package convention.
// The interpolation collapses the B axis first, then G, then R, and mixes
// the result with the original color by strength/100. Same math as the
// CPU backend, re-expressed data-parallel.
const trilinearShaderWGSL = `
struct Params {
    width: u32,
    rows: u32,
    lut_size: u32,
    strength: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> lut: array<f32>;
@group(0) @binding(2) var<storage, read_write> pixels: array<u32>;

fn lattice_sample(r: u32, g: u32, b: u32) -> vec3<f32> {
    let n = params.lut_size;
    let i = 3u * (r + g * n + b * n * n);
    return vec3<f32>(lut[i], lut[i + 1u], lut[i + 2u]);
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let idx = gid.x;
    if (idx >= params.width * params.rows) {
        return;
    }

    let px = pixels[idx];
    let orig = vec3<f32>(
        f32(px & 0xffu),
        f32((px >> 8u) & 0xffu),
        f32((px >> 16u) & 0xffu)) / 255.0;
    let alpha = (px >> 24u) & 0xffu;

    let scale = f32(params.lut_size - 1u);
    let pos = orig * scale;
    let max_lo = f32(params.lut_size - 2u);
    let lo = clamp(floor(pos), vec3<f32>(0.0), vec3<f32>(max_lo));
    let f = pos - lo;

    let r0 = u32(lo.x);
    let g0 = u32(lo.y);
    let b0 = u32(lo.z);

    let c000 = lattice_sample(r0,      g0,      b0);
    let c100 = lattice_sample(r0 + 1u, g0,      b0);
    let c010 = lattice_sample(r0,      g0 + 1u, b0);
    let c110 = lattice_sample(r0 + 1u, g0 + 1u, b0);
    let c001 = lattice_sample(r0,      g0,      b0 + 1u);
    let c101 = lattice_sample(r0 + 1u, g0,      b0 + 1u);
    let c011 = lattice_sample(r0,      g0 + 1u, b0 + 1u);
    let c111 = lattice_sample(r0 + 1u, g0 + 1u, b0 + 1u);

    let x00 = mix(c000, c001, f.z);
    let x10 = mix(c100, c101, f.z);
    let x01 = mix(c010, c011, f.z);
    let x11 = mix(c110, c111, f.z);

    let x0 = mix(x00, x01, f.y);
    let x1 = mix(x10, x11, f.y);
    let graded = mix(x0, x1, f.x);

    let m = f32(params.strength) / 100.0;
    let blended = clamp(mix(orig, graded, m), vec3<f32>(0.0), vec3<f32>(1.0));
    let quant = vec3<u32>(blended * 255.0 + vec3<f32>(0.5));

    pixels[idx] = quant.x | (quant.y << 8u) | (quant.z << 16u) | (alpha << 24u);
}
`
